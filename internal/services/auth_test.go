package services

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/amparolegal/amparo-backend/internal/pkg/ctxutil"
	"github.com/amparolegal/amparo-backend/internal/pkg/logger"
)

func newTestAuthService(t *testing.T) AuthService {
	t.Helper()
	t.Setenv("JWT_SECRET", "test-secret")
	log, err := logger.New("dev")
	if err != nil {
		t.Fatalf("logger init: %v", err)
	}
	as, err := NewAuthService(log)
	if err != nil {
		t.Fatalf("NewAuthService: %v", err)
	}
	return as
}

func TestMintAndVerifyToken(t *testing.T) {
	as := newTestAuthService(t)
	userID := uuid.New()

	token, err := as.MintToken(userID, RoleResearcher)
	if err != nil {
		t.Fatalf("MintToken: %v", err)
	}

	ctx, err := as.SetContextFromToken(context.Background(), token)
	if err != nil {
		t.Fatalf("SetContextFromToken: %v", err)
	}
	rd := ctxutil.GetRequestData(ctx)
	if rd == nil {
		t.Fatalf("request data not attached")
	}
	if rd.UserID != userID || rd.Role != RoleResearcher {
		t.Fatalf("unexpected request data %+v", rd)
	}
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	as := newTestAuthService(t)
	token, err := as.MintToken(uuid.New(), RoleAdmin)
	if err != nil {
		t.Fatalf("MintToken: %v", err)
	}
	tampered := token[:len(token)-2] + "xx"
	if _, err := as.SetContextFromToken(context.Background(), tampered); err == nil {
		t.Fatalf("tampered token must be rejected")
	}
}

func TestVerifyRejectsEmptyToken(t *testing.T) {
	as := newTestAuthService(t)
	if _, err := as.SetContextFromToken(context.Background(), "  "); err == nil {
		t.Fatalf("empty token must be rejected")
	}
}

func TestMissingRoleDefaultsToViewer(t *testing.T) {
	as := newTestAuthService(t)
	token, err := as.MintToken(uuid.New(), "")
	if err != nil {
		t.Fatalf("MintToken: %v", err)
	}
	ctx, err := as.SetContextFromToken(context.Background(), token)
	if err != nil {
		t.Fatalf("SetContextFromToken: %v", err)
	}
	rd := ctxutil.GetRequestData(ctx)
	if rd == nil || !strings.EqualFold(rd.Role, RoleViewer) {
		t.Fatalf("expected viewer default, got %+v", rd)
	}
}
