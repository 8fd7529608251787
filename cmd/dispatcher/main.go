package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/vrischmann/envconfig"
	"go.uber.org/multierr"

	"github.com/Sh00ty/cloud-nlb/task-dispatcher/internal/admission"
	"github.com/Sh00ty/cloud-nlb/task-dispatcher/internal/dispatch"
	"github.com/Sh00ty/cloud-nlb/task-dispatcher/internal/drain"
	"github.com/Sh00ty/cloud-nlb/task-dispatcher/internal/eventsink"
	"github.com/Sh00ty/cloud-nlb/task-dispatcher/internal/forwarder"
	"github.com/Sh00ty/cloud-nlb/task-dispatcher/internal/metrics"
	"github.com/Sh00ty/cloud-nlb/task-dispatcher/internal/models"
	"github.com/Sh00ty/cloud-nlb/task-dispatcher/internal/notifyer"
	"github.com/Sh00ty/cloud-nlb/task-dispatcher/internal/readiness"
	"github.com/Sh00ty/cloud-nlb/task-dispatcher/internal/reclaimer"
	"github.com/Sh00ty/cloud-nlb/task-dispatcher/internal/registry"
	"github.com/Sh00ty/cloud-nlb/task-dispatcher/internal/sender"
	"github.com/Sh00ty/cloud-nlb/task-dispatcher/internal/server"
	"github.com/Sh00ty/cloud-nlb/task-dispatcher/internal/strategy"
	"github.com/Sh00ty/cloud-nlb/task-dispatcher/pkg/provisioners"
	"github.com/Sh00ty/cloud-nlb/task-dispatcher/pkg/provisioning"
)

const flushTimeout = 5 * time.Second

func loggerLevelFromString(level string) zerolog.Level {
	level = strings.ToLower(level)
	switch level {
	case "error":
		return zerolog.ErrorLevel
	case "warn":
		return zerolog.WarnLevel
	case "info":
		return zerolog.InfoLevel
	case "debug":
		return zerolog.DebugLevel
	}
	return zerolog.WarnLevel
}

type Config struct {
	LoggerLevel string `envconfig:"LOGGER_LEVEL,default=info"`
	NodeName    string `envconfig:"NODE_NAME,default=dispatcher"`
	ListenAddr  string `envconfig:"LISTEN_ADDR,default=0.0.0.0:3001"`
	ProbeAddr   string `envconfig:"PROBE_ADDR,default=0.0.0.0:8080"`

	LocalWorker      string        `envconfig:"LOCAL_WORKER,default=localhost:3000"`
	LoadThreshold    int           `envconfig:"LOAD_THRESHOLD,default=1"`
	CleanupThreshold time.Duration `envconfig:"CLEANUP_THRESHOLD,default=60s"`
	DieGracePeriod   time.Duration `envconfig:"DIE_GRACE_PERIOD,default=1s"`
	DrainOnSignal    bool          `envconfig:"DRAIN_ON_SIGNAL,default=false"`

	EngineName       string `envconfig:"ENGINE_NAME,default=odmp"`
	MaxImages        int    `envconfig:"MAX_IMAGES,default=1000"`
	MaxParallelTasks int    `envconfig:"MAX_PARALLEL_TASKS,default=10"`

	Provisioner           string        `envconfig:"PROVISIONER,default=none"`
	ProvisionerSettings   string        `envconfig:"PROVISIONER_SETTINGS,optional"`
	ProvisionRateInterval time.Duration `envconfig:"PROVISION_RATE_INTERVAL,default=0s"`
	ProvisionBurst        int           `envconfig:"PROVISION_BURST,default=1"`
	ProvisionSingleFlight bool          `envconfig:"PROVISION_SINGLE_FLIGHT,default=false"`

	ReadinessProbe    bool          `envconfig:"READINESS_PROBE,default=false"`
	ReadinessAttempts uint          `envconfig:"READINESS_ATTEMPTS,default=30"`
	ReadinessDelay    time.Duration `envconfig:"READINESS_DELAY,default=2s"`

	StatsdAddr string `envconfig:"STATSD_ADDR,optional"`

	QueueAddr            string        `envconfig:"QUEUE_ADDR,optional"`
	QueuePoolEventsTopic string        `envconfig:"QUEUE_POOL_EVENTS_TOPIC,default=pool-events"`
	ResendEventsInterval time.Duration `envconfig:"RESEND_EVENTS_INTERVAL,default=5s"`
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err := godotenv.Load()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatal().Err(err).Msg("failed to load .env file")
	}

	appCfg := Config{}
	err = envconfig.Init(&appCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read app config")
	}
	log.Logger = log.Level(loggerLevelFromString(appCfg.LoggerLevel))

	log.Warn().Msgf("running dispatcher %s in front of %s", appCfg.NodeName, appCfg.LocalWorker)

	// closed after pending pool events are flushed, on return and before a drain exit
	closers := make([]io.Closer, 0)

	var m metrics.Metrics = metrics.Nop{}
	if appCfg.StatsdAddr != "" {
		statsd := metrics.NewStatsd(metrics.StatsdConfig{
			Addr:     appCfg.StatsdAddr,
			NodeName: appCfg.NodeName,
			Prefix:   "dispatcher.",
		}, log.Logger)
		closers = append(closers, statsd)
		m = statsd
	}

	poolEvents := notifyer.NewNotifier(1024)

	var sink sender.EventSink = eventsink.NewLogSink(log.Logger)
	if appCfg.QueueAddr != "" {
		kafkaSink := eventsink.NewKafkaSink(appCfg.QueueAddr, appCfg.QueuePoolEventsTopic)
		closers = append(closers, kafkaSink)
		sink = kafkaSink
	}
	eventSender := sender.NewSenderController(poolEvents.GetEventChan(), sink, appCfg.ResendEventsInterval)
	go eventSender.Run(ctx)

	shutdownOnce := sync.Once{}
	shutdown := func() {
		shutdownOnce.Do(func() {
			poolEvents.Close()
			flushCtx, flushCancel := context.WithTimeout(context.Background(), flushTimeout)
			defer flushCancel()
			eventSender.Flush(flushCtx)

			var errs error
			for _, c := range closers {
				errs = multierr.Append(errs, c.Close())
			}
			if errs != nil {
				log.Error().Err(errs).Msg("failed to close exporters")
			}
		})
	}
	defer shutdown()
	exit := func(code int) {
		shutdown()
		os.Exit(code)
	}

	prov, err := provisioners.NewProvisioner(
		provisioning.Kind(appCfg.Provisioner),
		[]byte(appCfg.ProvisionerSettings),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create provisioner")
	}

	reg := registry.New()
	err = reg.AddWorker(models.WorkerAddr(appCfg.LocalWorker), true)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to register local worker")
	}
	m.Gauge(metrics.PoolSize, reg.Size())

	reclaims := reclaimer.New(reg, prov, appCfg.CleanupThreshold, m, poolEvents, log.Logger)

	drainer := drain.NewController(reg, prov, reclaims, appCfg.DieGracePeriod, exit, m, poolEvents, log.Logger)

	admissionOpts := admission.Options{
		LoadThreshold: appCfg.LoadThreshold,
		SingleFlight:  appCfg.ProvisionSingleFlight,
		RateInterval:  appCfg.ProvisionRateInterval,
		Burst:         appCfg.ProvisionBurst,
	}
	if appCfg.ReadinessProbe {
		admissionOpts.Probe = readiness.NewHTTPProbe(readiness.Settings{
			Attempts: appCfg.ReadinessAttempts,
			Delay:    appCfg.ReadinessDelay,
		})
	}
	admissionCtl := admission.NewController(reg, prov, drainer, reclaims, admissionOpts, m, poolEvents, log.Logger)

	dispatcher := dispatch.New(
		reg,
		strategy.NewSelector(reg, reclaims),
		admissionCtl,
		reclaims,
		forwarder.New(),
		dispatch.Capabilities{
			Engine:           appCfg.EngineName,
			MaxImages:        appCfg.MaxImages,
			MaxParallelTasks: appCfg.MaxParallelTasks,
		},
		m,
		poolEvents,
		log.Logger,
	)

	gin.SetMode(gin.ReleaseMode)
	srv := http.Server{
		Handler: server.NewServer(dispatcher, drainer, log.Logger).Handler(),
		Addr:    appCfg.ListenAddr,
	}
	go func() {
		log.Info().Msgf("listening on %s", appCfg.ListenAddr)
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to start http server")
		}
	}()

	serverClose := startProbeServer(appCfg.ProbeAddr, drainer)
	defer serverClose()

	select {
	case <-ctx.Done():
	case <-drainer.Done():
		// the grace timer exits the process
		select {}
	}

	if appCfg.DrainOnSignal {
		drainer.Drain(context.Background())
		<-drainer.Done()
		select {}
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), appCfg.DieGracePeriod)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
}

func startProbeServer(addr string, drainer *drain.Controller) func() {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		if drainer.Draining() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	srv := http.Server{
		Handler: mux,
		Addr:    addr,
	}
	go func() {
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to start probe server")
		}
	}()
	return func() {
		_ = srv.Close()
	}
}
