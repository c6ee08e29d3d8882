package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/everylotbot/everylot/internal/bot"
	"github.com/everylotbot/everylot/internal/everylot"
)

func TestValidateCommandCleanDataset(t *testing.T) {
	a, _ := newFixtureApp([]everylot.Lot{fixtureLot()}, &stubPublisher{})
	installApp(t, a)

	var stdout, stderr bytes.Buffer
	code := run([]string{"validate"}, &stdout, &stderr)

	require.Equal(t, exitOK, code, "stderr: %s", stderr.String())

	var report bot.ValidationReport
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &report))
	assert.Equal(t, 1, report.Checked)
	assert.True(t, report.Clean())
}

func TestValidateCommandOffendersExitCodeAndReportFile(t *testing.T) {
	overlong := fixtureLot()
	overlong.ID = 2
	overlong.Neighborhood = strings.Repeat("A", 320)
	a, _ := newFixtureApp([]everylot.Lot{fixtureLot(), overlong}, &stubPublisher{})
	installApp(t, a)

	reportPath := filepath.Join(t.TempDir(), "report.json")
	var stdout, stderr bytes.Buffer
	code := run([]string{"validate", "--output", reportPath}, &stdout, &stderr)

	assert.Equal(t, exitAborted, code)
	assert.Contains(t, stderr.String(), "1 of 2 captions exceed 300 characters")

	data, err := os.ReadFile(reportPath)
	require.NoError(t, err)

	var report bot.ValidationReport
	require.NoError(t, json.Unmarshal(data, &report))
	require.Len(t, report.Offenders, 1)
	assert.Equal(t, int64(2), report.Offenders[0].LotID)
	assert.Greater(t, report.Offenders[0].Length, report.MaxLength)
}

func TestValidateCommandHonorsLimit(t *testing.T) {
	second := fixtureLot()
	second.ID = 2
	a, _ := newFixtureApp([]everylot.Lot{fixtureLot(), second}, &stubPublisher{})
	installApp(t, a)

	var stdout, stderr bytes.Buffer
	code := run([]string{"validate", "--limit", "1"}, &stdout, &stderr)

	require.Equal(t, exitOK, code, "stderr: %s", stderr.String())

	var report bot.ValidationReport
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &report))
	assert.Equal(t, 1, report.Checked)
}
