package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/BaSui01/fedflow/config"
	"github.com/BaSui01/fedflow/internal/metrics"
	"github.com/BaSui01/fedflow/internal/server"
	"github.com/BaSui01/fedflow/internal/tlsutil"
	"github.com/BaSui01/fedflow/transport"
)

// relayFlags 是 relay 与 status 共用的参数
type relayFlags struct {
	configPath  string
	nodes       string
	coordinator string
	caFile      string
	metricsAddr string
}

func (f *relayFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.configPath, "config", "", "Path to config file")
	fs.StringVar(&f.nodes, "nodes", "", "Comma separated node API URLs")
	fs.StringVar(&f.coordinator, "coordinator", "", "Coordinator URL (default: first node)")
	fs.StringVar(&f.caFile, "ca-file", "", "CA bundle for https nodes")
}

// apply 用命令行参数覆盖配置
func (f *relayFlags) apply(cfg *config.RelayConfig) {
	if f.nodes != "" {
		cfg.Nodes = splitList(f.nodes)
	}
	if f.coordinator != "" {
		cfg.Coordinator = f.coordinator
	}
}

func splitList(s string) []string {
	return lo.Compact(lo.Map(strings.Split(s, ","), func(p string, _ int) string {
		return strings.TrimRight(strings.TrimSpace(p), "/")
	}))
}

// buildRelay 为每个 URL 创建远程节点。节点 ID 即其 URL。
func buildRelay(cfg config.RelayConfig, caFile string, logger *zap.Logger, opts ...transport.RelayOption) (*transport.Relay, error) {
	cfg.Nodes = splitList(strings.Join(cfg.Nodes, ","))
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if len(cfg.Nodes) == 0 {
		return nil, fmt.Errorf("no nodes configured, use --nodes")
	}
	client := tlsutil.SecureHTTPClient(cfg.RequestTimeout)
	if caFile != "" {
		var err error
		client, err = tlsutil.HTTPClientWithCA(cfg.RequestTimeout, caFile)
		if err != nil {
			return nil, err
		}
	}

	nodes := lo.Map(cfg.Nodes, func(url string, _ int) transport.Node {
		return transport.NewRemoteNode(url, url,
			transport.WithHTTPClient(client),
			transport.WithRemoteLogger(logger))
	})
	coordinator := strings.TrimRight(cfg.Coordinator, "/")
	if coordinator == "" {
		coordinator = cfg.Nodes[0]
	}

	opts = append([]transport.RelayOption{
		transport.WithPollInterval(cfg.PollInterval),
		transport.WithRelayLogger(logger),
	}, opts...)
	return transport.NewRelay(nodes, coordinator, opts...)
}

// =============================================================================
// 🔁 relay 命令
// =============================================================================

func runRelay(args []string) {
	var f relayFlags
	fs := flag.NewFlagSet("relay", flag.ExitOnError)
	f.register(fs)
	fs.StringVar(&f.metricsAddr, "metrics-addr", "", "Serve relay metrics on this address")
	fs.Parse(args)

	cfg := loadConfig(f.configPath)
	f.apply(&cfg.Relay)
	logger := initLogger(cfg.Log)
	defer logger.Sync()

	collector := metrics.NewCollector("fedflow_relay", logger)
	relay, err := buildRelay(cfg.Relay, f.caFile, logger, transport.WithDeliveryRecorder(collector))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid relay setup: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if f.metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsEndpoint := server.NewEndpoint(mux, server.Options{
			Surface: server.SurfaceRelayMetrics,
			Addr:    f.metricsAddr,
		}, logger)
		go func() {
			if err := metricsEndpoint.Run(ctx); err != nil {
				logger.Error("metrics server error", zap.Error(err))
			}
		}()
	}

	logger.Info("Relay started", zap.Strings("nodes", relay.Peers()))
	runErr := relay.Run(ctx)
	printStatuses(os.Stdout, relay.Statuses(context.Background()))
	if runErr != nil {
		logger.Error("Relay stopped", zap.Error(runErr))
		os.Exit(1)
	}
	logger.Info("Round complete")
}

// =============================================================================
// 📊 status 命令
// =============================================================================

func runStatus(args []string) {
	var f relayFlags
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	f.register(fs)
	fs.Parse(args)

	cfg := loadConfig(f.configPath)
	f.apply(&cfg.Relay)

	relay, err := buildRelay(cfg.Relay, f.caFile, zap.NewNop())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid relay setup: %v\n", err)
		os.Exit(1)
	}
	timeout := cfg.Relay.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if failed := printStatuses(os.Stdout, relay.Statuses(ctx)); failed > 0 {
		os.Exit(1)
	}
}

// printStatuses 输出节点状态表，返回失败或不可达的节点数
func printStatuses(w io.Writer, statuses []transport.NodeStatus) int {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Node", "Role", "State", "Progress", "Inbox", "Message"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)

	failed := 0
	for _, s := range statuses {
		if s.Err != nil {
			failed++
			table.Append([]string{s.ID, "-", color.Red.Sprint("unreachable"), "-", "-", s.Err.Error()})
			continue
		}
		st := s.Status
		message := st.Message
		if st.Failed {
			failed++
			message = st.Error
		}
		table.Append([]string{
			s.ID,
			lo.Ternary(st.Role == "", "-", st.Role),
			stateColor(st.State, st.Failed, st.Finished).Sprint(st.State),
			strconv.FormatFloat(st.Progress*100, 'f', 0, 64) + "%",
			strconv.Itoa(st.Inbox),
			message,
		})
	}
	table.Render()
	return failed
}

func stateColor(state string, failed, finished bool) color.Color {
	switch {
	case failed:
		return color.Red
	case finished:
		return color.Green
	case state == "initializing":
		return color.Gray
	default:
		return color.Yellow
	}
}

// defaultRequestTimeout 用于配置未给出请求超时的情况
const defaultRequestTimeout = 10 * time.Second
