package problems

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []string{"add-two-numbers", "reverse-string"}, c.IDs())

	p, err := c.Get("add-two-numbers")
	require.NoError(t, err)
	assert.Equal(t, "Add Two Numbers", p.Title)
	require.Len(t, p.TestCases, 5)
	assert.Equal(t, 1, p.TestCases[0].ID)
	assert.Equal(t, []string{"12", "5"}, p.TestCases[0].Input)
	assert.Equal(t, "17", p.TestCases[0].Expected)
	assert.Equal(t, 5, p.TestCases[4].ID)

	for _, lang := range []string{"c", "cpp", "java", "python"} {
		_, ok := p.Template(lang)
		assert.True(t, ok, lang)
		_, ok = p.Call(lang)
		assert.True(t, ok, lang)
	}
}

func TestTemplateHasNoLeadingNewline(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	p, err := c.Get("add-two-numbers")
	require.NoError(t, err)

	tpl, _ := p.Template("python")
	assert.Equal(t, "def add_two_numbers(num1, num2):\n    # Write your code here\n    return 0", tpl)
}

func TestCasesPrefix(t *testing.T) {
	p := Problem{TestCases: []TestCase{{ID: 1}, {ID: 2}, {ID: 3}}}
	assert.Len(t, p.Cases(2), 2)
	assert.Len(t, p.Cases(0), 3)
	assert.Len(t, p.Cases(10), 3)
}

func TestGetUnknown(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	_, err = c.Get("two-sum")
	assert.ErrorIs(t, err, ErrProblemNotFound)
}

func TestParseValidation(t *testing.T) {
	_, err := Parse([]byte(`
[[problems]]
id = "empty"
`))
	assert.Error(t, err)

	_, err = Parse([]byte(`
[[problems]]
id = "a"
[[problems.tests]]
input = ["1"]
expected = "1"

[[problems]]
id = "a"
[[problems.tests]]
input = ["1"]
expected = "1"
`))
	assert.Error(t, err)
}

func TestDisplayInput(t *testing.T) {
	assert.Equal(t, "12, 5", TestCase{Input: []string{"12", "5"}}.DisplayInput())
	assert.Equal(t, "hello", TestCase{Input: []string{`"hello"`}}.DisplayInput())
}
