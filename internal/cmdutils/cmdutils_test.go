package cmdutils

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/openkcm/common-sdk/pkg/health"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/borrowbook/borrowbook/internal/config"
)

func TestCobraCommand(t *testing.T) {
	t.Run("creates command with correct properties", func(t *testing.T) {
		businessFunc := func(ctx context.Context, cfg *config.Config) error {
			return nil
		}

		wrapperFunc := func(ctx context.Context, fn BusinessFunc, cfg *config.Config) error {
			return fn(ctx, cfg)
		}

		cmd := CobraCommand("test-cmd", "short desc", "long description", "v1.0.0", wrapperFunc, businessFunc)

		assert.Equal(t, "test-cmd", cmd.Use)
		assert.Equal(t, "short desc", cmd.Short)
		assert.Equal(t, "long description", cmd.Long)
		assert.NotNil(t, cmd.RunE)
	})

	t.Run("RunE returns error when wrapper function fails", func(t *testing.T) {
		t.Chdir(writeConfig(t, "application:\n  name: borrowbook-test\n"))

		businessFunc := func(ctx context.Context, cfg *config.Config) error {
			return nil
		}

		wrapperErr := errors.New("wrapper error")
		wrapperFunc := func(ctx context.Context, fn BusinessFunc, cfg *config.Config) error {
			return wrapperErr
		}

		cmd := CobraCommand("test", "short", "long", "{}", wrapperFunc, businessFunc)
		cmd.SetArgs([]string{})

		err := cmd.Execute()
		assert.ErrorIs(t, err, wrapperErr)
		assert.Contains(t, err.Error(), "running test")
	})

	t.Run("RunE passes the loaded config", func(t *testing.T) {
		t.Chdir(writeConfig(t, "application:\n  name: borrowbook-test\nbackend:\n  baseURL: http://books.example.com\n"))

		var got *config.Config
		businessFunc := func(ctx context.Context, cfg *config.Config) error {
			got = cfg
			return nil
		}
		wrapperFunc := func(ctx context.Context, fn BusinessFunc, cfg *config.Config) error {
			return fn(ctx, cfg)
		}

		cmd := CobraCommand("test", "short", "long", "{}", wrapperFunc, businessFunc)
		cmd.SetArgs([]string{})

		require.NoError(t, cmd.Execute())
		require.NotNil(t, got)
		assert.Equal(t, "borrowbook-test", got.Application.Name)
		assert.Equal(t, "http://books.example.com", got.Backend.BaseURL)
	})
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o600))

	return dir
}

func TestStatusListener(t *testing.T) {
	t.Run("handles empty state", func(t *testing.T) {
		ctx := context.Background()
		state := health.State{
			Status:     "up",
			CheckState: map[string]health.CheckState{},
		}

		// Should not panic
		assert.NotPanics(t, func() {
			statusListener(ctx, state)
		})
	})

	t.Run("handles state with multiple check states", func(t *testing.T) {
		ctx := context.Background()
		state := health.State{
			Status: "degraded",
			CheckState: map[string]health.CheckState{
				"devserver": {
					Status: "up",
					Result: nil,
				},
				"cache": {
					Status: "down",
					Result: errors.New("connection refused"),
				},
			},
		}

		// Should not panic
		assert.NotPanics(t, func() {
			statusListener(ctx, state)
		})
	})
}

func TestHealthStatusTimeout(t *testing.T) {
	t.Run("has correct value", func(t *testing.T) {
		assert.Equal(t, 5*time.Second, healthStatusTimeout)
	})
}

func ExampleCobraCommand() {
	businessFunc := func(ctx context.Context, cfg *config.Config) error {
		fmt.Println("Running business logic")
		return nil
	}

	wrapperFunc := func(ctx context.Context, fn BusinessFunc, cfg *config.Config) error {
		fmt.Println("Wrapper function called")
		return fn(ctx, cfg)
	}

	cmd := CobraCommand(
		"example",
		"Example command",
		"This is an example of how to use CobraCommand",
		"v1.0.0",
		wrapperFunc,
		businessFunc,
	)

	fmt.Printf("Command use: %s\n", cmd.Use)
	// Output: Command use: example
}
