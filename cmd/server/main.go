package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ogurasousui/attendance-grpc/internal/adapters/grpc/handler"
	"github.com/ogurasousui/attendance-grpc/internal/adapters/grpc/interceptor"
	"github.com/ogurasousui/attendance-grpc/internal/adapters/repository/postgres"
	"github.com/ogurasousui/attendance-grpc/internal/adapters/scheduler"
	"github.com/ogurasousui/attendance-grpc/internal/core/attendance"
	"github.com/ogurasousui/attendance-grpc/internal/core/employee"
	"github.com/ogurasousui/attendance-grpc/internal/platform/config"
	pg "github.com/ogurasousui/attendance-grpc/internal/platform/db/postgres"
	"github.com/ogurasousui/attendance-grpc/internal/platform/server"
	"google.golang.org/grpc"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := config.LoadDotEnv(); err != nil {
		log.Fatalf("failed to load .env: %v", err)
	}

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "assets/local.yaml"
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	dbPool, err := pg.NewPool(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("failed to initialize database pool: %v", err)
	}
	defer dbPool.Close()

	txManager := pg.NewTransactionManager(dbPool)
	attendanceRepo := postgres.NewAttendanceRepository(dbPool)
	employeeRepo := postgres.NewEmployeeRepository(dbPool)

	directory := employee.NewDirectory(employeeRepo, txManager)
	attendanceSvc := attendance.NewService(attendanceRepo, directory, nil, txManager, cfg.Attendance.Location,
		attendance.WithDayCutoff(cfg.Attendance.SweepCutoff))

	logger := log.Default()
	sweeper := attendance.NewSweeper(attendanceRepo, nil, txManager, attendance.SweepConfig{
		Token:       cfg.Attendance.SweepToken,
		Cutoff:      cfg.Attendance.SweepCutoff,
		Concurrency: cfg.Attendance.SweepConcurrency,
		Location:    cfg.Attendance.Location,
		Logger:      logger,
	})

	if cfg.Attendance.SweepEnabled {
		job := scheduler.NewSweepJob(sweeper, cfg.Attendance.SweepToken, logger)
		sched, err := scheduler.New(cfg.Attendance.SweepSchedule, cfg.Attendance.Location, job, logger)
		if err != nil {
			log.Fatalf("failed to initialize sweep scheduler: %v", err)
		}
		sched.Start()
		log.Printf("sweep scheduled %q in %s, next run at %s",
			cfg.Attendance.SweepSchedule, cfg.Attendance.Location, sched.Next(time.Now()))
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := sched.Stop(stopCtx); err != nil {
				log.Printf("sweep scheduler did not stop cleanly: %v", err)
			}
		}()
	}

	auth := interceptor.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer, server.HealthServicePrefix)
	grpcServer := server.New(
		cfg.Server.ListenAddr,
		handler.NewAttendanceGrpcHandler(attendanceSvc, sweeper),
		grpc.ChainUnaryInterceptor(
			interceptor.Recovery(logger),
			interceptor.Logging(logger),
			auth.Unary(),
		),
	)

	log.Printf("gRPC server listening on %s", cfg.Server.ListenAddr)

	if err := grpcServer.Run(ctx); err != nil {
		log.Fatalf("server stopped with error: %v", err)
	}
}
