package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"LiquiSafe-Chain/internal/chain"
	"LiquiSafe-Chain/internal/chain/ethereum"
	"LiquiSafe-Chain/internal/contracts"

	"github.com/ethereum/go-ethereum/common"
)

// Registry manages a set of chain clients keyed by human readable names.
type Registry struct {
	defaultChain string
	clients      map[string]chain.Client
	multisends   map[string]common.Address
}

// NewRegistry loads chain definitions and instantiates concrete clients.
func NewRegistry(ctx context.Context, encoder *contracts.Encoder, configPath, defaultChain string) (*Registry, error) {
	defs, err := chain.LoadDefinitions(configPath)
	if err != nil {
		return nil, err
	}

	clients := make(map[string]chain.Client)
	multisends := make(map[string]common.Address)
	for name, def := range defs.Chains {
		chainType := strings.ToLower(strings.TrimSpace(def.Type))
		if chainType == "" {
			chainType = "evm"
		}
		switch chainType {
		case "evm", "ethereum":
			client, err := ethereum.NewClient(ctx, encoder, ethereum.Config{
				Name:          name,
				RPCURL:        def.RPCURL,
				SafeFactory:   common.HexToAddress(def.SafeFactory),
				SafeSingleton: common.HexToAddress(def.SafeSingleton),
				Notes:         def.Description,
			})
			if err != nil {
				return nil, fmt.Errorf("初始化链 %s 失败: %w", name, err)
			}
			clients[name] = client
			multisends[name] = common.HexToAddress(def.MultiSendAddress)
		default:
			return nil, fmt.Errorf("链 %s 使用了不支持的类型 %s", name, def.Type)
		}
	}

	if len(clients) == 0 {
		return nil, errors.New("未配置任何链的 RPC 端点")
	}

	if defaultChain == "" {
		names := make([]string, 0, len(clients))
		for name := range clients {
			names = append(names, name)
		}
		sort.Strings(names)
		defaultChain = names[0]
	}
	if _, ok := clients[defaultChain]; !ok {
		return nil, fmt.Errorf("默认链 %s 未在配置中找到", defaultChain)
	}

	return &Registry{defaultChain: defaultChain, clients: clients, multisends: multisends}, nil
}

// DefaultClient returns the client configured as default chain.
func (r *Registry) DefaultClient() (chain.Client, error) {
	if r == nil {
		return nil, errors.New("未初始化的链客户端注册表")
	}
	client, ok := r.clients[r.defaultChain]
	if !ok {
		return nil, fmt.Errorf("默认链 %s 未在注册表中", r.defaultChain)
	}
	return client, nil
}

// Client returns the chain client identified by name.
func (r *Registry) Client(name string) (chain.Client, bool) {
	if r == nil {
		return nil, false
	}
	client, ok := r.clients[name]
	return client, ok
}

// MultiSendAddress 返回指定链上批量执行合约的地址。
func (r *Registry) MultiSendAddress(name string) (common.Address, bool) {
	if r == nil {
		return common.Address{}, false
	}
	addr, ok := r.multisends[name]
	return addr, ok
}

// Close releases all clients managed by the registry.
func (r *Registry) Close() {
	if r == nil {
		return
	}
	for name, client := range r.clients {
		if client != nil {
			client.Close()
		}
		delete(r.clients, name)
	}
}

// Chains returns the list of registered chain names.
func (r *Registry) Chains() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
