package memory

import (
	"testing"

	"github.com/splax/skillsync/internal/repository"
	"github.com/splax/skillsync/internal/repository/storetest"
)

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(*testing.T) repository.Store { return New() })
}
