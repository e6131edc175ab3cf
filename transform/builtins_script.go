package transform

import (
	"fmt"
	"strings"

	"github.com/wtsi-hgi/shepherd/routing"
)

// renderWrapper substitutes the doubly-demarcated "[[script]]" and any
// "[[tag]]" placeholders in template against tags and the given inner
// script, without touching the inner script's own "{{...}}" variables.
func renderWrapper(template, script string, tags map[string]string) string {
	out := strings.ReplaceAll(template, "[[script]]", script)
	for k, v := range tags {
		out = strings.ReplaceAll(out, "[["+k+"]]", v)
	}
	return out
}

// Telemetry wraps the script with start/finish timestamping, host and
// user capture, and exit-code threading, so a failed script can be
// correlated back to when and where it ran. The process environment is
// not captured.
func Telemetry() ScriptTransformer {
	const wrapper = `
__shepherd_start=$(date -u +%s)
__shepherd_host=$(hostname)
__shepherd_user=$(id -un)
[[script]]
__shepherd_exit=$?
__shepherd_finish=$(date -u +%s)
echo "telemetry host=$__shepherd_host user=$__shepherd_user start=$__shepherd_start finish=$__shepherd_finish exit=$__shepherd_exit" >&2
exit $__shepherd_exit
`
	return ScriptTransformer{
		Name: "telemetry",
		Cost: routing.On,
		Run: func(script string, tags map[string]string) string {
			return renderWrapper(wrapper, script, tags)
		},
	}
}

// Debugging enables shell execution tracing (set -x) around the script.
func Debugging() ScriptTransformer {
	const wrapper = `
set -x
[[script]]
set +x
`
	return ScriptTransformer{
		Name: "debugging",
		Cost: routing.O1,
		Run: func(script string, tags map[string]string) string {
			return renderWrapper(wrapper, script, tags)
		},
	}
}

// RenderInner renders the inner transfer-script template's
// "{{source}}"/"{{target}}" variables. This is the template engine's
// variable set described by the component design; the templating engine
// itself is out of scope, but the tag substitution it must perform on
// this narrow variable set is pinned down here so the planner has a
// concrete rendering step to call.
func RenderInner(template string, source, target Endpoint) string {
	r := strings.NewReplacer(
		"{{source.filesystem}}", source.Filesystem,
		"{{source.address}}", source.Address,
		"{{target.filesystem}}", target.Filesystem,
		"{{target.address}}", target.Address,
	)
	return r.Replace(template)
}

// Tags builds the template variable set a rendered script (or its outer
// wrapper) is rendered with: "from"/"source" alias the source endpoint's
// address and filesystem name; "to"/"target" alias the target's, per the
// plan-time tag set.
func Tags(source, target Endpoint) map[string]string {
	return map[string]string{
		"from":   source.Address,
		"source": fmt.Sprintf("%s:%s", source.Filesystem, source.Address),
		"to":     target.Address,
		"target": fmt.Sprintf("%s:%s", target.Filesystem, target.Address),
	}
}
