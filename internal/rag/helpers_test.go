package rag

import (
	"testing"

	"github.com/amparolegal/amparo-backend/internal/pkg/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("dev")
	if err != nil {
		t.Fatalf("logger init: %v", err)
	}
	return log
}
