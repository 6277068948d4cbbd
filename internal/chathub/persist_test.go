package chathub_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"pairup/backend/internal/chathub"
	"pairup/backend/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestPersister_FIFO(t *testing.T) {
	storageMock := new(MockStorage)
	p := chathub.NewPersister(storageMock, 8, slog.Default())

	var order []string
	for _, name := range []string{"first", "second", "third"} {
		name := name
		p.Enqueue(name, func(storage.Storage) error {
			order = append(order, name)
			return nil
		})
	}
	p.Flush()

	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestPersister_DropsWhenFull(t *testing.T) {
	storageMock := new(MockStorage)
	p := chathub.NewPersister(storageMock, 1, slog.Default())

	calls := 0
	op := func(storage.Storage) error { calls++; return nil }
	p.Enqueue("kept", op)
	p.Enqueue("dropped", op)
	p.Flush()

	assert.Equal(t, 1, calls)
}

func TestPersister_ErrorDoesNotStopQueue(t *testing.T) {
	storageMock := new(MockStorage)
	storageMock.On("DeleteRoom", "r1").Return(errors.New("redis down")).Once()
	storageMock.On("DeleteRoom", "r2").Return(nil).Once()
	p := chathub.NewPersister(storageMock, 8, slog.Default())

	p.Enqueue("delete r1", func(s storage.Storage) error { return s.DeleteRoom("r1") })
	p.Enqueue("delete r2", func(s storage.Storage) error { return s.DeleteRoom("r2") })
	p.Flush()

	storageMock.AssertExpectations(t)
}

func TestPersister_RunFlushesOnCancel(t *testing.T) {
	storageMock := new(MockStorage)
	storageMock.On("TouchPresence", mock.Anything).Return(nil)
	p := chathub.NewPersister(storageMock, 8, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = p.Run(ctx)
	}()

	p.Enqueue("touch", func(s storage.Storage) error { return s.TouchPresence("X") })
	assert.Eventually(t, func() bool { return p.Pending() == 0 }, time.Second, 5*time.Millisecond)

	cancel()
	<-done
	storageMock.AssertCalled(t, "TouchPresence", "X")
}

func TestPersister_NilStorageIsNoop(t *testing.T) {
	p := chathub.NewPersister(nil, 1, slog.Default())
	p.Enqueue("noop", func(storage.Storage) error { panic("must not run") })
	assert.Zero(t, p.Pending())
}
