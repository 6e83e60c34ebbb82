package id

import (
	"strconv"
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	node *snowflake.Node
	once sync.Once
)

// Init configures the process-wide node. Server and worker must use distinct
// node IDs. Only the first call has an effect.
func Init(nodeID int64) error {
	var err error
	once.Do(func() {
		node, err = snowflake.NewNode(nodeID)
	})
	return err
}

// New returns a time-ordered int64 ID. Panics if Init was never called.
func New() int64 {
	if node == nil {
		panic("id: Init must be called before New")
	}
	return node.Generate().Int64()
}

// Parse reads an ID as rendered on the wire (decimal string).
func Parse(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}

// Format renders an ID for the wire. Snowflakes exceed 2^53, so clients get strings.
func Format(v int64) string {
	return strconv.FormatInt(v, 10)
}
