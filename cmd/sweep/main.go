package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ogurasousui/attendance-grpc/internal/adapters/grpc/handler"
	"github.com/ogurasousui/attendance-grpc/internal/adapters/grpc/interceptor"
	"github.com/ogurasousui/attendance-grpc/internal/core/identity"
	"github.com/ogurasousui/attendance-grpc/internal/platform/config"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// 外部スケジューラ (k8s CronJob など) から Sweep RPC を呼び出すコマンドです。
func main() {
	var (
		configPath = flag.String("config", "", "path to config file (defaults to CONFIG_PATH env or assets/local.yaml)")
		addr       = flag.String("addr", "", "server address (defaults to server.listen_addr)")
		day        = flag.String("day", "", "work day to sweep (YYYY-MM-DD); defaults to the previous day on the server")
		bearer     = flag.String("token", os.Getenv("SWEEP_BEARER_TOKEN"), "bearer token; minted from auth.jwt_secret when empty")
		timeout    = flag.Duration("timeout", 5*time.Minute, "RPC timeout")
	)
	flag.Parse()

	if err := config.LoadDotEnv(); err != nil {
		log.Fatalf("failed to load .env: %v", err)
	}

	cfg, err := config.Load(effectiveConfigPath(*configPath))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	target := *addr
	if target == "" {
		target = cfg.Server.ListenAddr
	}

	token := *bearer
	if token == "" {
		token, err = interceptor.IssueToken(cfg.Auth.JWTSecret, cfg.Auth.Issuer,
			identity.Identity{Subject: "sweep-cli", Role: identity.RoleAdmin}, *timeout+time.Minute)
		if err != nil {
			log.Fatalf("failed to issue token: %v", err)
		}
	}

	conn, err := grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatalf("failed to connect to %s: %v", target, err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	ctx = metadata.AppendToOutgoingContext(ctx,
		"authorization", "Bearer "+token,
		handler.SweepTokenHeader, cfg.Attendance.SweepToken,
	)

	req := &structpb.Struct{Fields: map[string]*structpb.Value{}}
	if *day != "" {
		req.Fields["day"] = structpb.NewStringValue(*day)
	}

	resp, err := handler.NewAttendanceServiceClient(conn).Call(ctx, "Sweep", req)
	if err != nil {
		log.Fatalf("sweep failed: %v", err)
	}

	out, err := protojson.MarshalOptions{Multiline: true}.Marshal(resp)
	if err != nil {
		log.Fatalf("failed to encode report: %v", err)
	}
	fmt.Println(string(out))

	if resp.GetFields()["partialFailure"].GetBoolValue() {
		os.Exit(2)
	}
}

func effectiveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv("CONFIG_PATH"); env != "" {
		return env
	}
	return "assets/local.yaml"
}
