package factory

import (
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mcoot/battleship-go/internal/dependencies/mocks"
	"github.com/mcoot/battleship-go/internal/services/auth"
	"github.com/mcoot/battleship-go/internal/services/match"
	"github.com/mcoot/battleship-go/internal/storage/memory"
	"github.com/mcoot/battleship-go/internal/testutil"
)

// TestApp extends App with test-specific helpers
type TestApp struct {
	*App

	// Mocks for test control
	MockClock  *mocks.MockClock
	MockRandom *mocks.MockRandom
	Memory     *memory.Storage
}

// NewTestApp creates an App configured for testing with mocked dependencies
func NewTestApp() *TestApp {
	store := memory.New()
	mockClock := mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	mockRandom := mocks.NewMockRandom()

	authCfg := auth.DefaultConfig()
	authCfg.BcryptCost = bcrypt.MinCost

	recCfg := match.DefaultRecorderConfig()
	recCfg.RetryBackoff = time.Millisecond

	app := newWithDependencies(store, nil, mockClock, mockRandom, authCfg, recCfg, testutil.NopLogger())

	return &TestApp{
		App:        app,
		MockClock:  mockClock,
		MockRandom: mockRandom,
		Memory:     store,
	}
}
