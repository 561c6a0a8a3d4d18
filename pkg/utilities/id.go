package utilities

import (
	"os"
	"strconv"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/segmentio/ksuid"
)

// NewKSUID generates a new globally unique KSUID string. Used for user
// identifiers and security stamps.
func NewKSUID() string {
	return ksuid.New().String()
}

var (
	nodeOnce sync.Once
	node     *snowflake.Node
)

// NewSnowflakeID generates a snowflake ID string using the node ID from
// SNOWFLAKE_NODE (default 1). The node is created once per process so IDs
// stay monotonic. If the node cannot be created a KSUID is returned.
func NewSnowflakeID() string {
	nodeOnce.Do(func() {
		node, _ = snowflake.NewNode(nodeIDFromEnv())
	})
	return generate(node)
}

func nodeIDFromEnv() int64 {
	id, err := strconv.ParseInt(os.Getenv("SNOWFLAKE_NODE"), 10, 64)
	if err != nil {
		return 1
	}
	return id
}

// generate falls back to a KSUID when no node is available.
func generate(n *snowflake.Node) string {
	if n == nil {
		return NewKSUID()
	}
	return n.Generate().String()
}
