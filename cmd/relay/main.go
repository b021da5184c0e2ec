// Command relay boots a single relay-domain process: market data, signal,
// or execution (spec §4.C). Each domain runs in its own process so a
// slow subscriber on one bus can never backpressure another.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flashmesh/arbcore/internal/config"
	"github.com/flashmesh/arbcore/internal/relay"
	"github.com/flashmesh/arbcore/pkg/protocol"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	domainFlag := flag.String("domain", "", "relay domain to serve: market_data, signal, or execution")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	domain, domainCfg, err := resolveDomain(*domainFlag, cfg)
	if err != nil {
		logger.Error("resolve domain", "error", err)
		os.Exit(1)
	}

	logger = logger.With("component", "relay", "domain", domain.String())

	srvCfg := relay.Config{
		Domain:            domain,
		SocketPath:        domainCfg.SocketPath,
		StrictValidation:  domainCfg.StrictValidation,
		Backpressure:      backpressurePolicy(domainCfg.Backpressure),
		Topic:             topicStrategy(domainCfg.Topic),
		MaxFrameSize:      domainCfg.MaxFrameSize,
		OutboundQueueSize: domainCfg.OutboundQueueSize,
	}
	if domainCfg.AuditLog {
		srvCfg.AuditLog = logger.With("audit", true)
	}

	server := relay.NewServer(srvCfg, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		<-ctx.Done()
		logger.Info("shutting down relay")
		server.Close()
	}()

	// Market data additionally accepts the shared-memory ring as an
	// ingestion source alongside socket publishers (spec §2/§4.B): a
	// collector colocated on this host may write frames directly into the
	// ring instead of dialing the socket.
	if domain == protocol.DomainMarketData && cfg.RingBuffer.MarketData.Path != "" {
		go runRingIngestWithRetry(ctx, server, cfg.RingBuffer.MarketData.Path, logger)
	}

	logger.Info("relay listening", "socket", domainCfg.SocketPath)
	if err := server.Run(); err != nil {
		logger.Error("relay exited", "error", err)
		os.Exit(1)
	}
}

// runRingIngestWithRetry retries ring ingestion with backoff: the ring file
// is created by whichever collector writes to it first, so the relay may
// start before that file exists.
func runRingIngestWithRetry(ctx context.Context, server *relay.Server, path string, logger *slog.Logger) {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		if err := server.RunRingIngest(path, 0); err != nil && ctx.Err() == nil {
			logger.Warn("ring ingest stopped, retrying", "error", err, "backoff", backoff)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > 30*time.Second {
			backoff = 30 * time.Second
		}
	}
}

func resolveDomain(name string, cfg *config.Config) (protocol.RelayDomain, config.RelayDomainConfig, error) {
	switch name {
	case "market_data":
		return protocol.DomainMarketData, cfg.RelayDomains.MarketData, nil
	case "signal":
		return protocol.DomainSignal, cfg.RelayDomains.Signal, nil
	case "execution":
		return protocol.DomainExecution, cfg.RelayDomains.Execution, nil
	default:
		return 0, config.RelayDomainConfig{}, errUnknownDomain(name)
	}
}

type errUnknownDomain string

func (e errUnknownDomain) Error() string {
	return "unknown --domain " + string(e) + ", want market_data, signal, or execution"
}

func backpressurePolicy(s string) relay.BackpressurePolicy {
	if s == "disconnect" {
		return relay.Disconnect
	}
	return relay.DropOldest
}

func topicStrategy(s string) relay.TopicStrategy {
	switch s {
	case "by_source":
		return relay.TopicBySource
	case "by_field":
		return relay.TopicByField
	default:
		return relay.TopicConstant
	}
}
