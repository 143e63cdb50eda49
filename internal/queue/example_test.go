package queue_test

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/dwestbrook/tasksync/internal/queue"
)

// Repeated edits to the same entity collapse to the latest operation of
// each kind, so the queue stays small no matter how long the client is
// offline.
func ExampleStore_Enqueue() {
	dir, _ := os.MkdirTemp("", "queue")
	defer os.RemoveAll(dir)

	q, _ := queue.Open(filepath.Join(dir, "pending.json"), log.New(io.Discard, "", 0))

	_ = q.Enqueue(queue.OpCreate, "t1", map[string]any{"id": "t1", "title": "buy milk"})
	_ = q.Enqueue(queue.OpUpdate, "t1", map[string]any{"completed": true})
	_ = q.Enqueue(queue.OpUpdate, "t1", map[string]any{"completed": false})

	for _, op := range q.ListAll() {
		fmt.Println(op.Kind, op.EntityID)
	}
	// Output:
	// create t1
	// update t1
}
