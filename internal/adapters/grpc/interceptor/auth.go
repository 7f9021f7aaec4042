package interceptor

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/ogurasousui/attendance-grpc/internal/core/identity"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const authorizationHeader = "authorization"

// Claims は認証サービスが発行するアクセストークンのクレームです。
type Claims struct {
	Role       string `json:"role"`
	EmployeeID string `json:"employeeId,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator は Bearer トークンを検証し、呼び出し元の Identity をコンテキストへ格納します。
type Authenticator struct {
	secret []byte
	issuer string
	public map[string]struct{}
}

// NewAuthenticator は HS256 で署名されたトークンを検証する Authenticator を生成します。
// publicPrefixes に前方一致するメソッドは認証を省略します。
func NewAuthenticator(secret, issuer string, publicPrefixes ...string) *Authenticator {
	public := make(map[string]struct{}, len(publicPrefixes))
	for _, p := range publicPrefixes {
		public[p] = struct{}{}
	}
	return &Authenticator{secret: []byte(secret), issuer: issuer, public: public}
}

// Unary は認証を行う UnaryServerInterceptor を返します。
func (a *Authenticator) Unary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if a.isPublic(info.FullMethod) {
			return handler(ctx, req)
		}

		id, err := a.Authenticate(ctx)
		if err != nil {
			return nil, err
		}
		return handler(identity.WithIdentity(ctx, id), req)
	}
}

// Authenticate はメタデータのトークンを検証して Identity を返します。
func (a *Authenticator) Authenticate(ctx context.Context) (identity.Identity, error) {
	raw, err := bearerToken(ctx)
	if err != nil {
		return identity.Identity{}, err
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return identity.Identity{}, status.Error(codes.Unauthenticated, "token expired")
		}
		return identity.Identity{}, status.Error(codes.Unauthenticated, "invalid token")
	}

	role, ok := identity.ParseRole(claims.Role)
	if !ok {
		return identity.Identity{}, status.Errorf(codes.PermissionDenied, "unknown role %q", claims.Role)
	}
	if role == identity.RoleEmployee && strings.TrimSpace(claims.EmployeeID) == "" {
		return identity.Identity{}, status.Error(codes.PermissionDenied, "employee token without employeeId")
	}

	return identity.Identity{
		Subject:    claims.Subject,
		EmployeeID: strings.TrimSpace(claims.EmployeeID),
		Role:       role,
	}, nil
}

func (a *Authenticator) isPublic(method string) bool {
	for prefix := range a.public {
		if strings.HasPrefix(method, prefix) {
			return true
		}
	}
	return false
}

func bearerToken(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", status.Error(codes.Unauthenticated, "missing authorization")
	}
	values := md.Get(authorizationHeader)
	if len(values) == 0 {
		return "", status.Error(codes.Unauthenticated, "missing authorization")
	}

	parts := strings.SplitN(values[0], " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", status.Error(codes.Unauthenticated, "invalid authorization")
	}
	return strings.TrimSpace(parts[1]), nil
}

// IssueToken は id を表す HS256 トークンを発行します。スケジューラ用のサービストークンとテストで使用します。
func IssueToken(secret, issuer string, id identity.Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role:       string(id.Role),
		EmployeeID: id.EmployeeID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.Subject,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
