package merge

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const widgetSource = `<#
 Get-Hidden should not count
#>
function Get-Widget {
    [CmdletBinding()]
    [Alias('gw', "Get-Gadget")]
    param()
    # Invoke-Commented
    $x = Get-Item -Path 'Invoke-InString'
    if (Test-Path $x) { Write-Output "Remove-Quoted" }
    Get-Widget | Select-Object Name; & $callback
    return Format-Result
}
`

func TestScan(t *testing.T) {
	files := []SourceFile{{Path: "Public/Get-Widget.ps1", Lines: splitLines(widgetSource)}}

	res := Scan(files)

	require.Len(t, res.Functions, 1)
	assert.Equal(t, FunctionDef{Name: "Get-Widget", File: "Public/Get-Widget.ps1"}, res.Functions[0])
	assert.Equal(t, []string{"gw", "Get-Gadget"}, res.Aliases["public/get-widget.ps1"])
	assert.Equal(t, []string{
		"$callback", "Format-Result", "Get-Item", "Get-Widget", "Select-Object", "Test-Path", "Write-Output",
	}, res.Commands)
}

func TestScan_HereStringIsIgnored(t *testing.T) {
	src := strings.Join([]string{
		"$doc = @\"",
		"Remove-Everything",
		"\"@",
		"Invoke-After",
	}, "\n")

	res := Scan([]SourceFile{{Path: "x.ps1", Lines: splitLines(src)}})

	assert.Equal(t, []string{"Invoke-After"}, res.Commands)
}

func TestExtractFunction(t *testing.T) {
	src := `function Other { }
function Get-Thing {
    param($a)
    # } not a brace
    if ($a) { "}" }
    'x'
}
function After { }
`
	expected := `function Get-Thing {
    param($a)
    # } not a brace
    if ($a) { "}" }
    'x'
}`

	got, ok := ExtractFunction(src, "Get-Thing")

	require.True(t, ok)
	assert.Equal(t, expected, got)

	_, ok = ExtractFunction(src, "Get-Missing")
	assert.False(t, ok)
}
