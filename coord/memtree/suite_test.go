package memtree

import (
	"testing"

	"github.com/treekeeper/treekeeper/coord"
	"github.com/treekeeper/treekeeper/coord/coordtest"
)

func TestServiceConformance(t *testing.T) {
	tr := NewTree()
	coordtest.Run(t, func(t *testing.T) coord.Service {
		return tr.NewSession()
	})
}
