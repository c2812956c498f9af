package rest

import (
	"sync"
	"testing"
)

func TestSerialQueue_Order(t *testing.T) {
	q := NewSerialQueue()
	var mu sync.Mutex
	var got []int
	for i := 0; i < 100; i++ {
		q.Submit(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		})
	}
	q.Close()

	if len(got) != 100 {
		t.Fatalf("ran %d tasks", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("task %d ran at position %d", v, i)
		}
	}
}

func TestSerialQueue_PanicDoesNotStopWorker(t *testing.T) {
	q := NewSerialQueue()
	ran := false
	q.Submit(func() { panic("boom") })
	q.Submit(func() { ran = true })
	q.Close()
	if !ran {
		t.Error("task after a panic should still run")
	}
}

func TestSerialQueue_SubmitAfterClose(t *testing.T) {
	q := NewSerialQueue()
	q.Close()
	q.Close()

	ran := false
	q.Submit(func() { ran = true })
	if !ran {
		t.Error("tasks submitted after Close run inline")
	}
}
