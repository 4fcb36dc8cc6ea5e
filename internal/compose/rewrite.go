package compose

import (
	"fmt"
	"regexp"
	"strings"
)

const rootName = "RemotionRoot"

var (
	namedRootPattern = regexp.MustCompile(
		`\bexport\s+(?:const|let|var|function)\s+RemotionRoot\b|\bexport\s*\{[^}]*\bRemotionRoot\b[^}]*\}`)
	arrowDefaultPattern    = regexp.MustCompile(`\bexport\s+default\s+(\([^)]*\)|[A-Za-z_$][\w$]*)\s*=>`)
	functionDefaultPattern = regexp.MustCompile(`\bexport\s+default\s+function\s*([A-Za-z_$][\w$]*)?\s*\(`)
	componentPropPattern   = regexp.MustCompile(`\bcomponent\s*=\s*\{\s*([A-Za-z_$][\w$.]*)\s*\}`)
	numericPropPattern     = regexp.MustCompile(`\b(durationInFrames|fps|width|height)\s*=\s*\{\s*(\d+)\s*\}`)
)

// Rewrite patches program so it exports a named RemotionRoot, which the
// renderer's entry point requires. Only these shapes are touched:
//
//	export default (props) => ...      -> export const RemotionRoot = (props) => ...
//	export default function Foo(...)   -> function Foo(...) + export const RemotionRoot = Foo;
//	export default function (...)      -> export function RemotionRoot(...)
//	<Composition ...> without any root -> a wrapper root is appended
//
// Anything else, including a program that already exports RemotionRoot, is
// returned unchanged. Rewrite is idempotent.
func Rewrite(program string) string {
	if namedRootPattern.MatchString(program) {
		return program
	}

	if loc := arrowDefaultPattern.FindStringSubmatchIndex(program); loc != nil {
		return program[:loc[0]] + "export const " + rootName + " = " + program[loc[2]:]
	}

	if loc := functionDefaultPattern.FindStringSubmatchIndex(program); loc != nil {
		name := ""
		if loc[2] >= 0 {
			name = program[loc[2]:loc[3]]
		}
		if name == "" || name == rootName {
			return program[:loc[0]] + "export function " + rootName + "(" + program[loc[1]:]
		}
		patched := program[:loc[0]] + "function " + name + "(" + program[loc[1]:]
		return appendLine(patched, fmt.Sprintf("export const %s = %s;", rootName, name))
	}

	if tag := compositionTagPattern.FindString(program); tag != "" {
		return appendLine(program, wrapperRoot(tag))
	}

	return program
}

// wrapperRoot builds a root exporting the composition described by tag
func wrapperRoot(tag string) string {
	id := firstGroup(compositionIDPattern.FindStringSubmatch(tag))
	if id == "" {
		id = EmbeddedCompositionID
	}
	component := EmbeddedCompositionID
	if m := componentPropPattern.FindStringSubmatch(tag); m != nil {
		component = m[1]
	}

	props := map[string]string{
		"durationInFrames": "450",
		"fps":              "30",
		"width":            "1080",
		"height":           "1920",
	}
	for _, m := range numericPropPattern.FindAllStringSubmatch(tag, -1) {
		props[m[1]] = m[2]
	}

	return fmt.Sprintf(`export const %s = () => {
  return (
    <Composition
      id={%s}
      component={%s}
      durationInFrames={%s}
      fps={%s}
      width={%s}
      height={%s}
    />
  );
};`, rootName, jsString(id), component, props["durationInFrames"], props["fps"], props["width"], props["height"])
}

func appendLine(program, line string) string {
	return strings.TrimRight(program, "\n") + "\n\n" + line + "\n"
}
