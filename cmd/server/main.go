// cmd/server/main.go
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/unclebandit/dripleopard-backend/internal/config"
	"github.com/unclebandit/dripleopard-backend/internal/controller"
	"github.com/unclebandit/dripleopard-backend/internal/coordinator"
	"github.com/unclebandit/dripleopard-backend/internal/db"
	"github.com/unclebandit/dripleopard-backend/internal/delivery"
	"github.com/unclebandit/dripleopard-backend/internal/handler"
	"github.com/unclebandit/dripleopard-backend/internal/ingest"
	"github.com/unclebandit/dripleopard-backend/internal/logger"
	"github.com/unclebandit/dripleopard-backend/internal/queue"
	"github.com/unclebandit/dripleopard-backend/internal/repository"
	"github.com/unclebandit/dripleopard-backend/internal/scheduler"
	"github.com/unclebandit/dripleopard-backend/internal/service"
	"github.com/unclebandit/dripleopard-backend/internal/store"
	"github.com/unclebandit/dripleopard-backend/internal/watch"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("❌ failed to load configuration")
	}

	baseLog := logger.New(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
	log := baseLog.WithField("service", "server")

	// State store; the Postgres backend also carries the delivery audit log.
	var st store.Store
	var auditLog *repository.DeliveryLogRepository
	if cfg.StoreBackend == config.BackendPostgres {
		conn, err := db.Connect(cfg.DatabaseURL(), log)
		if err != nil {
			log.WithError(err).Fatal("❌ failed to connect to database")
		}
		defer conn.Close()
		st = store.NewPostgresStore(conn, baseLog.WithField("component", "store"))
		auditLog = &repository.DeliveryLogRepository{DB: conn}
	} else {
		st = store.NewFileStore(cfg.StatePath, baseLog.WithField("component", "store"))
	}

	manager := service.NewCampaignManager(st, cfg.FilePersistence, baseLog.WithField("component", "manager"))
	if err := manager.Restore(); err != nil {
		log.WithError(err).Warn("⚠️ campaign state restore failed, starting empty")
	}

	// Delivery transport: broker when configured, in-process queue otherwise.
	deliveryLog := baseLog.WithField("component", "delivery")
	var dispatcher delivery.Dispatcher
	if cfg.AMQPURL != "" {
		amqpDispatcher, err := delivery.NewAMQPDispatcher(cfg.AMQPURL, cfg.QueueName, deliveryLog)
		if err != nil {
			log.WithError(err).Fatal("❌ failed to connect to message broker")
		}
		defer amqpDispatcher.Close()
		dispatcher = amqpDispatcher
	} else {
		q := queue.NewInMemoryQueue(baseLog.WithField("component", "queue"))
		sender := delivery.NewMockSender(0.9, time.Now().UnixNano(), deliveryLog)
		worker := delivery.NewWorker(sender, &delivery.ManagerReporter{Manager: manager}, deliveryLog)
		if auditLog != nil {
			worker.WithRecorder(auditLog)
		}
		delivery.StartDeliverySubscriber(q, cfg.QueueName, worker, deliveryLog)
		dispatcher = &delivery.QueueDispatcher{Queue: q, Topic: cfg.QueueName}
	}

	action := delivery.NewEmailAction(dispatcher, deliveryLog)
	sched := scheduler.NewStageScheduler(manager, cfg.RetryInterval, cfg.StartBuffer, baseLog.WithField("component", "scheduler"))
	coord := coordinator.New(manager, sched, action, cfg.PollInterval, baseLog.WithField("component", "coordinator"))

	// Folder discovery feeds parsed groups into the coordinator.
	parser := ingest.NewParser(baseLog.WithField("component", "ingest"))
	discover := func(dir string) {
		groupKey, group, err := parser.ParseGroupFolder(dir)
		if err != nil {
			log.WithError(err).WithField("dir", dir).Warn("⚠️ group folder rejected")
			return
		}
		coord.OnGroupDiscovered(groupKey, group)
	}

	watcher, err := watch.NewFolderWatcher(cfg.DataDir, discover, baseLog.WithField("component", "watch"))
	if err != nil {
		log.WithError(err).Fatal("❌ failed to create folder watcher")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go sched.Run()
	go coord.Run(ctx)
	if err := watcher.Start(ctx); err != nil {
		log.WithError(err).Fatal("❌ failed to start folder watcher")
	}

	campaignController := &controller.CampaignController{
		Manager: manager,
		Waker:   coord,
		Log:     baseLog.WithField("component", "controller"),
	}
	if auditLog != nil {
		campaignController.DeliveryLog = auditLog
	}
	campaignHandler := handler.NewCampaignHandler(manager, watcher, sched, baseLog.WithField("component", "handler"))

	r := chi.NewRouter()

	// Campaign group routes
	r.Get("/groups", campaignController.ListGroups)
	r.Get("/groups/{key}", campaignController.GetGroup)
	r.Get("/groups/{key}/campaigns/{id}", campaignController.GetCampaign)
	r.Post("/groups/{key}/campaigns/{id}/stages/{n}/contacts/{address}/progress", campaignController.UpdateContactProgress)
	r.Get("/groups/{key}/campaigns/{id}/stats", campaignHandler.GetCampaignStatsHandler)
	r.Get("/groups/{key}/campaigns/{id}/deliveries", campaignController.ListDeliveries)
	r.Get("/healthz", campaignHandler.HealthzHandler)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	go func() {
		log.WithField("addr", cfg.HTTPAddr).Info("🚀 server running")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("❌ http server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("🛑 shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("⚠️ http shutdown failed")
	}
	watcher.Stop()
	cancel()
	if err := sched.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("⚠️ scheduler drain interrupted")
	}
	log.Info("👋 server stopped")
}
