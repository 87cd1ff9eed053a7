package sources

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEntry() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}

func TestRegisterAndOpen(t *testing.T) {
	Register("test-open", func(settings map[string]any, log *logrus.Entry) (Provider, error) {
		return Provider{}, nil
	})

	_, err := Open("test-open", nil, testEntry())
	require.NoError(t, err)
}

func TestOpenUnknownProvider(t *testing.T) {
	_, err := Open("no-such-provider", nil, testEntry())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no-such-provider")
}

func TestRegisterDuplicatePanics(t *testing.T) {
	Register("test-dup", func(settings map[string]any, log *logrus.Entry) (Provider, error) {
		return Provider{}, nil
	})
	assert.Panics(t, func() {
		Register("test-dup", func(settings map[string]any, log *logrus.Entry) (Provider, error) {
			return Provider{}, nil
		})
	})
}

func TestNamesSorted(t *testing.T) {
	Register("test-names-b", func(settings map[string]any, log *logrus.Entry) (Provider, error) {
		return Provider{}, nil
	})
	Register("test-names-a", func(settings map[string]any, log *logrus.Entry) (Provider, error) {
		return Provider{}, nil
	})

	names := Names()
	assert.IsIncreasing(t, names)
	assert.Contains(t, names, "test-names-a")
	assert.Contains(t, names, "test-names-b")
}
