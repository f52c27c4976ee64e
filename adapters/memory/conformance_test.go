package memory_test

import (
	"testing"

	"github.com/artpar/recordbase/adapters/memory"
	"github.com/artpar/recordbase/adapters/storetest"
	"github.com/artpar/recordbase/ports"
)

func TestStoreConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) ports.Store { return memory.New() })
}
