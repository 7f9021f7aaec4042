package interceptor

import (
	"bytes"
	"context"
	"errors"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/ogurasousui/attendance-grpc/internal/core/identity"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const (
	testSecret = "test-secret"
	testIssuer = "auth.test"
)

func incoming(token string) context.Context {
	return metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer "+token))
}

func mustIssue(t *testing.T, id identity.Identity, ttl time.Duration) string {
	t.Helper()
	token, err := IssueToken(testSecret, testIssuer, id, ttl)
	if err != nil {
		t.Fatalf("IssueToken returned error: %v", err)
	}
	return token
}

func TestAuthenticator_Authenticate(t *testing.T) {
	t.Parallel()

	auth := NewAuthenticator(testSecret, testIssuer)
	token := mustIssue(t, identity.Identity{Subject: "user-7", EmployeeID: "7", Role: identity.RoleEmployee}, time.Hour)

	id, err := auth.Authenticate(incoming(token))
	if err != nil {
		t.Fatalf("Authenticate returned error: %v", err)
	}
	if id.Subject != "user-7" || id.EmployeeID != "7" || id.Role != identity.RoleEmployee {
		t.Fatalf("unexpected identity %+v", id)
	}
}

func TestAuthenticator_Rejects(t *testing.T) {
	t.Parallel()

	auth := NewAuthenticator(testSecret, testIssuer)

	wrongIssuer, err := IssueToken(testSecret, "elsewhere", identity.Identity{Subject: "a", Role: identity.RoleAdmin}, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken returned error: %v", err)
	}
	wrongSecret, err := IssueToken("other", testIssuer, identity.Identity{Subject: "a", Role: identity.RoleAdmin}, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken returned error: %v", err)
	}
	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role:             "admin",
		RegisteredClaims: jwt.RegisteredClaims{Subject: "a", Issuer: testIssuer},
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	cases := []struct {
		name string
		ctx  context.Context
		code codes.Code
	}{
		{"no metadata", context.Background(), codes.Unauthenticated},
		{"no header", metadata.NewIncomingContext(context.Background(), metadata.Pairs()), codes.Unauthenticated},
		{"basic scheme", metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Basic abc")), codes.Unauthenticated},
		{"expired", incoming(mustIssue(t, identity.Identity{Subject: "a", Role: identity.RoleAdmin}, -time.Minute)), codes.Unauthenticated},
		{"wrong issuer", incoming(wrongIssuer), codes.Unauthenticated},
		{"wrong secret", incoming(wrongSecret), codes.Unauthenticated},
		{"no expiry", incoming(noExpiry), codes.Unauthenticated},
		{"unknown role", incoming(mustIssue(t, identity.Identity{Subject: "a", Role: "owner"}, time.Hour)), codes.PermissionDenied},
		{"employee without id", incoming(mustIssue(t, identity.Identity{Subject: "a", Role: identity.RoleEmployee}, time.Hour)), codes.PermissionDenied},
	}

	for _, tc := range cases {
		_, err := auth.Authenticate(tc.ctx)
		if status.Code(err) != tc.code {
			t.Errorf("%s: expected %s, got %v", tc.name, tc.code, err)
		}
	}
}

func TestAuthenticator_UnaryInjectsIdentity(t *testing.T) {
	t.Parallel()

	auth := NewAuthenticator(testSecret, "", "/grpc.health.v1.Health/")
	token := mustIssue(t, identity.Identity{Subject: "admin-1", Role: identity.RoleAdmin}, time.Hour)

	var got identity.Identity
	handler := func(ctx context.Context, req any) (any, error) {
		got, _ = identity.FromContext(ctx)
		return "ok", nil
	}

	info := &grpc.UnaryServerInfo{FullMethod: "/attendance.v1.AttendanceService/Login"}
	if _, err := auth.Unary()(incoming(token), nil, info, handler); err != nil {
		t.Fatalf("interceptor returned error: %v", err)
	}
	if !got.IsAdmin() || got.Subject != "admin-1" {
		t.Fatalf("unexpected identity %+v", got)
	}

	if _, err := auth.Unary()(context.Background(), nil, info, handler); status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected Unauthenticated without token, got %v", err)
	}

	health := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}
	if _, err := auth.Unary()(context.Background(), nil, health, handler); err != nil {
		t.Fatalf("expected public method to skip auth, got %v", err)
	}
}

func TestRecovery(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := log.New(&buf, "", 0)
	info := &grpc.UnaryServerInfo{FullMethod: "/attendance.v1.AttendanceService/Logout"}

	_, err := Recovery(logger)(context.Background(), nil, info, func(context.Context, any) (any, error) {
		panic("boom")
	})
	if status.Code(err) != codes.Internal {
		t.Fatalf("expected Internal, got %v", err)
	}
	if !strings.Contains(buf.String(), "boom") {
		t.Fatalf("expected panic to be logged, got %q", buf.String())
	}
}

func TestLogging(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := log.New(&buf, "", 0)
	info := &grpc.UnaryServerInfo{FullMethod: "/attendance.v1.AttendanceService/Sweep"}

	wantErr := status.Error(codes.Unavailable, "db down")
	_, err := Logging(logger)(context.Background(), nil, info, func(context.Context, any) (any, error) {
		return nil, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected error to pass through, got %v", err)
	}
	if !strings.Contains(buf.String(), "code=Unavailable") || !strings.Contains(buf.String(), "db down") {
		t.Fatalf("unexpected log line %q", buf.String())
	}
}
