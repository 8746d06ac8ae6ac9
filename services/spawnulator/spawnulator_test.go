package spawnulator

import (
	"context"
	"testing"
	"time"

	kestrel "github.com/ehrlich-b/kestrel"
)

type fakeVM struct {
	ran chan struct{}
}

func (f *fakeVM) Run(ctx context.Context) {
	close(f.ran)
}

func TestSpawnulatorSpawnsAndAcks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	k := kestrel.New(kestrel.Settings{})
	if err := Register(ctx, k, Settings{}); err != nil {
		t.Fatal(err)
	}
	go k.RunTickLoop(ctx)

	client, err := FromRegistry(ctx, k)
	if err != nil {
		t.Fatal(err)
	}

	vm := &fakeVM{ran: make(chan struct{})}
	if err := client.Spawn(ctx, vm); err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	select {
	case <-vm.ran:
	case <-time.After(2 * time.Second):
		t.Fatal("spawned VM never ran")
	}
}

func TestSpawnManyChildren(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	k := kestrel.New(kestrel.Settings{})
	if err := Register(ctx, k, Settings{QueueDepth: 2}); err != nil {
		t.Fatal(err)
	}
	go k.RunTickLoop(ctx)

	client, err := FromRegistry(ctx, k)
	if err != nil {
		t.Fatal(err)
	}

	vms := make([]*fakeVM, 8)
	for i := range vms {
		vms[i] = &fakeVM{ran: make(chan struct{})}
		if err := client.Spawn(ctx, vms[i]); err != nil {
			t.Fatalf("Spawn %d: %v", i, err)
		}
	}
	for i, vm := range vms {
		select {
		case <-vm.ran:
		case <-time.After(2 * time.Second):
			t.Fatalf("child %d never ran", i)
		}
	}
}
