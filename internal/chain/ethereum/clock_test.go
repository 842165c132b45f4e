package ethereum

import (
	"context"
	"sync"
	"testing"
)

func TestNewClockRequiresRPCURL(t *testing.T) {
	if _, err := NewClock(context.Background(), Config{Name: "empty"}); err == nil {
		t.Fatal("期望空 RPC 地址返回错误")
	}
}

func TestClockRejectsReadsAfterClose(t *testing.T) {
	clock := &Clock{}
	clock.Close()

	if _, err := clock.BlockNumber(context.Background()); err == nil {
		t.Fatal("期望关闭后的时钟读取高度返回错误")
	}
	if _, err := clock.ChainID(context.Background()); err == nil {
		t.Fatal("期望关闭后的时钟读取链 ID 返回错误")
	}
}

func TestClockCloseConcurrentWithReads(t *testing.T) {
	clock := &Clock{}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = clock.BlockNumber(context.Background())
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		clock.Close()
	}()
	wg.Wait()

	// Close must be idempotent.
	clock.Close()
}
