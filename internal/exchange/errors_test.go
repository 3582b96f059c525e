package exchange

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyCode(t *testing.T) {
	cases := []struct {
		code string
		kind ErrKind
	}{
		{"50011", KindRateLimited},
		{"50113", KindAuth},
		{"51008", KindInsufficientMargin},
		{"51131", KindInsufficientMargin},
		{"51001", KindInvalidInstrument},
		// 未登记的code一律按远端拒绝兜底
		{"51999", KindRemoteRejected},
	}
	for _, c := range cases {
		err := classifyCode(c.code, "msg")
		assert.Equal(t, c.kind, err.Kind, c.code)
		assert.Equal(t, c.code, err.Code)
	}
}

func TestClassifyTimeout(t *testing.T) {
	err := Classify(context.DeadlineExceeded)
	assert.Equal(t, KindNetworkTimeout, err.Kind)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	wrapped := Classify(fmt.Errorf("fetch balance: %w", context.DeadlineExceeded))
	assert.Equal(t, KindNetworkTimeout, wrapped.Kind)
}

func TestClassifyPreservesExchangeError(t *testing.T) {
	orig := newError(KindInsufficientMargin, "51008", "insufficient margin")
	got := Classify(fmt.Errorf("submit: %w", orig))
	assert.Equal(t, KindInsufficientMargin, got.Kind)
	assert.Equal(t, "51008", got.Code)
}

func TestClassifyCodeInMessage(t *testing.T) {
	// goex会把okx的code拼进错误字符串
	err := Classify(errors.New(`{"code":"51008","msg":"Order failed. Insufficient USDT margin in account"}`))
	assert.Equal(t, KindInsufficientMargin, err.Kind)
	assert.Equal(t, "51008", err.Code)
}

func TestRetryable(t *testing.T) {
	assert.True(t, IsRetryable(newError(KindRateLimited, "50011", "")))
	assert.True(t, IsRetryable(newError(KindNetworkTimeout, "", "")))
	assert.False(t, IsRetryable(newError(KindAuth, "50113", "")))
	assert.False(t, IsRetryable(newError(KindInsufficientMargin, "51008", "")))
	assert.False(t, IsRetryable(newError(KindRemoteRejected, "", "")))
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindAuth, KindOf(newError(KindAuth, "", "missing key")))
	assert.Equal(t, ErrKind(""), KindOf(errors.New("plain")))
	assert.Equal(t, ErrKind(""), KindOf(nil))
}
