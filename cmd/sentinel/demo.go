package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cuemby/sentinel/pkg/codec"
	"github.com/cuemby/sentinel/pkg/config"
	"github.com/cuemby/sentinel/pkg/coordinator"
	"github.com/cuemby/sentinel/pkg/discovery"
	"github.com/cuemby/sentinel/pkg/lifecycle"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run a sample worker under a supervised, discoverable lifecycle",
	Long: `demo starts an embedded coordinator, wraps a trivial in-process
worker with pkg/lifecycle.Supervisor, registers it with
pkg/discovery.Registrar, and prints each USER message it receives and the
final state reported to the finalizer to stdout. Intermediate state
transitions and discovery membership changes are not printed. It exists
to exercise the coordination core end to end without a real hosted
service.`,
	RunE: runDemo,
}

func init() {
	demoCmd.Flags().String("run-id", "", "RunId for this demo instance (random if omitted)")
	demoCmd.Flags().String("service", "demo", "Service name to advertise via discovery")
	demoCmd.Flags().Int("port", 8080, "Port to advertise as this instance's endpoint")
}

func runDemo(cmd *cobra.Command, args []string) error {
	runID, _ := cmd.Flags().GetString("run-id")
	if runID == "" {
		runID = "demo-" + uuid.NewString()
	}
	service, _ := cmd.Flags().GetString("service")
	port, _ := cmd.Flags().GetInt("port")

	cfg, err := config.Load("")
	if err != nil {
		return err
	}

	core, err := coordinator.NewEmbeddedCore(os.TempDir()+"/sentinel-demo-"+runID, cfg.SessionTimeout)
	if err != nil {
		return fmt.Errorf("failed to start embedded coordinator: %w", err)
	}
	defer core.Close()

	gw := coordinator.NewEmbeddedGateway(core)
	defer gw.Close()

	hostname, _ := os.Hostname()

	worker := newDemoWorker()
	sup := lifecycle.NewSupervisor(gw, lifecycle.Config{
		RunID:       runID,
		Worker:      worker,
		Callback:    demoCallback{},
		LivePayload: map[string]interface{}{"hostname": hostname, "port": port},
		Finalizer: func(ctx context.Context, final codec.State, cause error) error {
			fmt.Printf("[%s] finalizer: final=%s cause=%v\n", runID, final, cause)
			return nil
		},
	})

	registrar := discovery.NewRegistrar(gw, cfg.DiscoveryNamespace)
	defer registrar.Stop()

	ctx := context.Background()
	if err := sup.Start(ctx); err != nil {
		return fmt.Errorf("failed to start supervisor: %w", err)
	}

	handle, err := registrar.Register(ctx, codec.Discoverable{Service: service, Hostname: hostname, Port: port})
	if err != nil {
		return fmt.Errorf("failed to register with discovery: %w", err)
	}

	fmt.Printf("sentinel demo running: run-id=%s service=%s port=%d\n", runID, service, port)
	fmt.Println("Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		fmt.Println("\nStopping...")
		_ = sup.Stop(ctx)
	case <-sup.Done():
	}

	<-sup.Done()
	_ = handle.Cancel(ctx)
	return nil
}

type demoCallback struct{}

func (demoCallback) OnReceived(ctx context.Context, id string, msg codec.Message) error {
	fmt.Printf("demo: received message %s: command=%q payload=%d bytes\n", id, msg.Command, len(msg.Payload))
	return nil
}

// demoWorker is a minimal lifecycle.Service: it reports RUNNING shortly
// after Start and TERMINATED shortly after Stop, with nothing actually
// running in between. Real workers replace this with their own state
// machine.
type demoWorker struct {
	mu        sync.Mutex
	listeners []lifecycle.Listener
}

func newDemoWorker() *demoWorker {
	return &demoWorker{}
}

func (w *demoWorker) AddListener(l lifecycle.Listener) {
	w.mu.Lock()
	w.listeners = append(w.listeners, l)
	w.mu.Unlock()
}

func (w *demoWorker) notify(fn func(lifecycle.Listener)) {
	w.mu.Lock()
	listeners := append([]lifecycle.Listener(nil), w.listeners...)
	w.mu.Unlock()
	for _, l := range listeners {
		fn(l)
	}
}

func (w *demoWorker) Start(ctx context.Context) error {
	w.notify(func(l lifecycle.Listener) { l.Starting() })
	go func() {
		time.Sleep(200 * time.Millisecond)
		w.notify(func(l lifecycle.Listener) { l.Running() })
	}()
	return nil
}

func (w *demoWorker) Stop(ctx context.Context) error {
	w.notify(func(l lifecycle.Listener) { l.Stopping() })
	go func() {
		time.Sleep(200 * time.Millisecond)
		w.notify(func(l lifecycle.Listener) { l.Terminated(codec.StateStopping) })
	}()
	return nil
}
