package mdloader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucid-cells/cellrun/internal/domain"
)

const sampleProgram = "# Demo\n\n" +
	"```code name=base\n" +
	"base = 10\n" +
	"```\n\n" +
	"Some prose in between that is not a cell.\n\n" +
	"```template name=greeting\n" +
	"Hello, {{ base }}!\n" +
	"```\n"

func TestLoadParsesCellsInOrder(t *testing.T) {
	program, err := Load("demo", sampleProgram)
	require.NoError(t, err)
	require.Len(t, program.Cells, 2)

	assert.Equal(t, domain.CellCode, program.Cells[0].Kind)
	assert.Equal(t, "base", program.Cells[0].Name)
	assert.Equal(t, "base = 10", program.Cells[0].Source)
	assert.Equal(t, "demo#1", program.Cells[0].ID)

	assert.Equal(t, domain.CellTemplate, program.Cells[1].Kind)
	assert.Equal(t, "greeting", program.Cells[1].Name)
	assert.Equal(t, "Hello, {{ base }}!", program.Cells[1].Source)
}

func TestLoadDefaultsUnnamedCells(t *testing.T) {
	md := "```code\nx = 1\n```\n"
	program, err := Load("p", md)
	require.NoError(t, err)
	require.Len(t, program.Cells, 1)
	assert.Equal(t, "cell_1", program.Cells[0].Name)
}

func TestLoadSkipsNonCellFences(t *testing.T) {
	md := "```text\njust prose\n```\n```code name=x\nx = 1\n```\n"
	program, err := Load("p", md)
	require.NoError(t, err)
	require.Len(t, program.Cells, 1)
	assert.Equal(t, "x", program.Cells[0].Name)
}

func TestLoadParsesHeaderConfig(t *testing.T) {
	md := "```prompt name=ask model=gpt-4o-mini\nSay hi to {{ name }}\n```\n"
	program, err := Load("p", md)
	require.NoError(t, err)
	require.Len(t, program.Cells, 1)
	assert.Equal(t, "gpt-4o-mini", program.Cells[0].Config["model"])
}
