package cli

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStart_ThenResume(t *testing.T) {
	db := tempDB(t)

	out, err := execute(t, testOptions(), "--db", db, "start", "hold")
	require.NoError(t, err)
	assert.Equal(t, "started hold as pid 0 (still live)\n", out)

	out, err = execute(t, testOptions(), "--db", db, "start", "greet", "Ann")
	require.NoError(t, err)
	assert.Equal(t, "started greet as pid 1\n", out)

	out, err = execute(t, testOptions(), "--db", db, "resume")
	require.NoError(t, err)
	assert.Equal(t, "1 live, 0 unrecoverable\n", out)

	// Equivalent starts join the persisted process.
	out, err = execute(t, testOptions(), "--db", db, "start", "hold")
	require.NoError(t, err)
	assert.Equal(t, "started hold as pid 0 (still live)\n", out)
}

func TestPs_Empty(t *testing.T) {
	out, err := execute(t, testOptions(), "--db", tempDB(t), "ps")
	require.NoError(t, err)
	assert.Equal(t, "no live processes\n", out)
}

func TestPs_Golden(t *testing.T) {
	db := tempDB(t)
	_, err := execute(t, testOptions(), "--db", db, "start", "parent")
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)

	text, err := execute(t, testOptions(), "--db", db, "ps")
	require.NoError(t, err)
	g.Assert(t, "ps_text", []byte(text))

	js, err := execute(t, testOptions(), "--db", db, "--format", "json", "ps")
	require.NoError(t, err)
	g.Assert(t, "ps_json", []byte(js))
}
