package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"LiquiSafe-Chain/internal/api"
	"LiquiSafe-Chain/internal/chain/provider"
	"LiquiSafe-Chain/internal/config"
	"LiquiSafe-Chain/internal/contracts"
	"LiquiSafe-Chain/internal/journal"
	"LiquiSafe-Chain/internal/ledger"
	"LiquiSafe-Chain/internal/observability/alerting"
	"LiquiSafe-Chain/internal/observability/metrics"
	"LiquiSafe-Chain/internal/protocol"
	"LiquiSafe-Chain/internal/randomness"
	"LiquiSafe-Chain/internal/signer"
	"LiquiSafe-Chain/internal/strategy"
	"LiquiSafe-Chain/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
)

// main 是 LiquiSafe 参与方守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("liquisafed 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("LIQUISAFE_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "liquisafe.json")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{}); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	// 本方身份。
	agentSigner, err := signer.LoadLocalSigner(cfg.Agent.KeyFile)
	if err != nil {
		return err
	}

	encoder, err := contracts.NewEncoder()
	if err != nil {
		return err
	}

	// 链客户端注册表。
	chainRegistry, err := provider.NewRegistry(ctx, encoder, cfg.Chain.ConfigFile, cfg.Chain.DefaultChain)
	if err != nil {
		return err
	}
	defer chainRegistry.Close()

	chainClient, err := chainRegistry.DefaultClient()
	if err != nil {
		return err
	}
	multisend, ok := chainRegistry.MultiSendAddress(chainClient.Name())
	if !ok || multisend == (common.Address{}) {
		return fmt.Errorf("链 %s 未配置 multisend 合约地址", chainClient.Name())
	}

	// 提案中继。
	relay, err := createRelay(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = relay.Close() }()

	// 审计存储。
	journalStore, err := createJournal(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = journalStore.Close() }()

	// 策略来源。
	strategyProvider, err := strategy.LoadStaticProvider(cfg.Strategy.File)
	if err != nil {
		return err
	}

	// 随机数信标。
	beacon, err := randomness.NewDrandClient(randomness.DrandConfig{
		BaseURL: cfg.Beacon.BaseURL,
		Timeout: time.Duration(cfg.Beacon.TimeoutSec) * time.Second,
	})
	if err != nil {
		return err
	}

	participants := make([]common.Address, 0, len(cfg.Protocol.Participants))
	for _, raw := range cfg.Protocol.Participants {
		participants = append(participants, common.HexToAddress(raw))
	}

	opts := []protocol.Option{protocol.WithJournal(journalStore)}
	if alerts, err := createAlerts(cfg); err != nil {
		return err
	} else if alerts != nil {
		opts = append(opts, protocol.WithAlerts(alerts))
	}

	engine, err := protocol.NewEngine(
		protocol.Dependencies{
			Signer:    agentSigner,
			Relay:     relay,
			Client:    chainClient,
			Encoder:   encoder,
			MultiSend: multisend,
			Strategy:  strategyProvider,
			Beacon:    beacon,
		},
		protocol.Config{
			Participants:    participants,
			Threshold:       cfg.Protocol.Threshold,
			SafeAddress:     common.HexToAddress(cfg.Protocol.SafeAddress),
			RoundTimeout:    time.Duration(cfg.Protocol.RoundTimeoutSec) * time.Second,
			ResetPause:      time.Duration(cfg.Protocol.ResetPauseSec) * time.Second,
			ReceiptAttempts: cfg.Protocol.ReceiptAttempts,
			ReceiptInterval: time.Duration(cfg.Protocol.ReceiptGapSec) * time.Second,
			MaxRetries:      cfg.Protocol.MaxRetries,
		},
		opts...,
	)
	if err != nil {
		return err
	}

	engineCtx, engineCancel := context.WithCancel(ctx)
	defer engineCancel()

	go func() {
		if err := engine.Run(engineCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.L().Error("状态机异常退出", "error", err)
		}
	}()

	// 可选的独立指标端口。状态接口自身也挂载 /metrics。
	if cfg.Server.MetricsAddress != "" {
		go func() {
			if err := metrics.StartServer(ctx, cfg.Server.MetricsAddress); err != nil && !errors.Is(err, context.Canceled) {
				logger.L().Error("指标服务异常退出", "error", err)
			}
		}()
	}

	server := api.NewServer(cfg.Server.Address, engine, journalStore)
	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func createRelay(cfg *config.Config) (ledger.Relay, error) {
	switch cfg.Relay.Driver {
	case "", "memory":
		// 单进程演练：所有参与方都在本进程内时才有意义。
		return ledger.NewBus().Join(), nil
	case "redis":
		return ledger.NewRedisRelay(ledger.RedisRelayConfig{
			Address:  cfg.Relay.Address,
			Password: cfg.Relay.Password,
			DB:       cfg.Relay.DB,
			Channel:  cfg.Relay.Channel,
		})
	case "rabbitmq":
		return ledger.NewRabbitMQRelay(ledger.RabbitMQRelayConfig{
			URL:      cfg.Relay.URL,
			Exchange: cfg.Relay.Exchange,
		})
	default:
		return nil, fmt.Errorf("未知的中继驱动: %s", cfg.Relay.Driver)
	}
}

func createAlerts(cfg *config.Config) (alerting.Dispatcher, error) {
	notifiers := make([]alerting.Notifier, 0, 2)
	if cfg.Alerting.DingTalkWebhook != "" {
		sender, err := alerting.NewDingTalkWebhook(cfg.Alerting.DingTalkWebhook)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, &alerting.DingTalkNotifier{Sender: sender})
	}
	if cfg.Alerting.SlackWebhook != "" {
		sender, err := alerting.NewSlackWebhook(cfg.Alerting.SlackWebhook)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, &alerting.SlackNotifier{
			Sender:    sender,
			ChannelID: cfg.Alerting.SlackChannel,
		})
	}
	if len(notifiers) == 0 {
		return nil, nil
	}
	return alerting.NewFanout(notifiers...), nil
}

func createJournal(cfg *config.Config) (journal.Store, error) {
	switch cfg.Journal.Driver {
	case "", "memory":
		return journal.NewMemoryStore(), nil
	case "mysql":
		return journal.NewMySQLStore(cfg.Journal.DSN)
	default:
		return nil, fmt.Errorf("未知的审计存储驱动: %s", cfg.Journal.Driver)
	}
}
