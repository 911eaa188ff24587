package bridge_test

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"shelfscan/internal/bridge"
	"shelfscan/internal/capture"
	"shelfscan/internal/scan"
)

func TestSlotLoadBeforeStore(t *testing.T) {
	slot := bridge.NewSlot[int]()
	if _, ok := slot.Load(); ok {
		t.Fatal("expected empty slot")
	}
	if seq := slot.Store(5); seq != 1 {
		t.Fatalf("expected seq 1, got %d", seq)
	}
	v, ok := slot.Load()
	if !ok || v.Value != 5 || v.Seq != 1 {
		t.Fatalf("unexpected value %+v", v)
	}
}

func TestSlotWaitIsEdgeTriggered(t *testing.T) {
	slot := bridge.NewSlot[string]()
	slot.Store("old")

	got := make(chan bridge.Versioned[string], 1)
	go func() {
		v, err := slot.Wait(context.Background(), 1)
		if err == nil {
			got <- v
		}
	}()

	select {
	case v := <-got:
		t.Fatalf("Wait returned before a new store: %+v", v)
	case <-time.After(30 * time.Millisecond):
	}

	slot.Store("new")
	select {
	case v := <-got:
		if v.Value != "new" || v.Seq != 2 {
			t.Fatalf("unexpected value %+v", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not wake on store")
	}
}

func TestSlotWaitReturnsImmediatelyWhenBehind(t *testing.T) {
	slot := bridge.NewSlot[int]()
	slot.Store(1)
	slot.Store(2)
	slot.Store(3)
	v, err := slot.Wait(context.Background(), 1)
	if err != nil || v.Value != 3 || v.Seq != 3 {
		t.Fatalf("expected newest value, got %+v err=%v", v, err)
	}
}

func TestSlotWaitHonoursContext(t *testing.T) {
	slot := bridge.NewSlot[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := slot.Wait(ctx, 0); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestSlotConcurrentStoreAndLoad(t *testing.T) {
	slot := bridge.NewSlot[[2]int]()
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			slot.Store([2]int{i, i})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			v, _ := slot.Load()
			if v.Value[0] != v.Value[1] {
				t.Errorf("torn read %v", v.Value)
				return
			}
		}
	}()
	wg.Wait()
}

func TestHubClonesFramesOnPublish(t *testing.T) {
	hub := bridge.NewHubWithRunID("run-1")
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))

	if err := hub.RawSink().PublishFrame(capture.Frame{Seq: 1, Image: img}); err != nil {
		t.Fatalf("PublishFrame: %v", err)
	}
	img.Set(0, 0, color.White)

	v, err := hub.LatestFrame(false)
	if err != nil {
		t.Fatalf("LatestFrame: %v", err)
	}
	if r, _, _, _ := v.Value.Image.At(0, 0).RGBA(); r != 0 {
		t.Fatal("stored frame aliases producer buffer")
	}
	if _, err := hub.LatestFrame(true); !errors.Is(err, bridge.ErrNoFrame) {
		t.Fatalf("expected ErrNoFrame for annotated slot, got %v", err)
	}
}

func TestHubRejectsEmptyFrame(t *testing.T) {
	hub := bridge.NewHub()
	if err := hub.AnnotatedSink().PublishFrame(capture.Frame{}); err == nil {
		t.Fatal("expected error for empty frame")
	}
	if hub.RunID() == "" {
		t.Fatal("expected generated run id")
	}
}

func TestLocalFeedLateAttachSkipsOldScans(t *testing.T) {
	hub := bridge.NewHubWithRunID("run-1")
	_ = hub.PublishEvent(scan.Event{ItemID: 1})
	feed := bridge.NewLocalFeed(hub)

	cursor, err := feed.Current(context.Background())
	if err != nil || cursor.Seq != 1 {
		t.Fatalf("unexpected cursor %+v err=%v", cursor, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := feed.Next(ctx, cursor); err == nil {
		t.Fatal("late consumer must not see the old scan")
	}

	_ = hub.PublishEvent(scan.Event{ItemID: 2})
	update, err := feed.Next(context.Background(), cursor)
	if err != nil || update.Event.ItemID != 2 || update.Seq != 2 {
		t.Fatalf("unexpected update %+v err=%v", update, err)
	}
}

func TestLocalFeedRunIDChangeResetsCursor(t *testing.T) {
	hub := bridge.NewHubWithRunID("run-2")
	_ = hub.PublishEvent(scan.Event{ItemID: 8})
	feed := bridge.NewLocalFeed(hub)

	update, err := feed.Next(context.Background(), bridge.Cursor{RunID: "run-1", Seq: 50})
	if err != nil || update.Event.ItemID != 8 || update.RunID != "run-2" {
		t.Fatalf("expected delivery after run change, got %+v err=%v", update, err)
	}
}
