package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/beevik/etree"

	"github.com/roach88/uirun/internal/harness"
)

// JUnitOptions configures WriteJUnit.
type JUnitOptions struct {
	// Name is the testsuites name. Defaults to "uirun".
	Name string
}

// WriteJUnit writes rep as JUnit XML.
//
// Scenarios are grouped into one testsuite per source file, in order of
// first appearance. A scenario that failed at a step gets a failure
// element; one that failed before any step ran (fixtures, page session)
// gets an error element. The captured page markup goes to system-out.
func WriteJUnit(w io.Writer, rep *harness.Report, opts JUnitOptions) error {
	name := opts.Name
	if name == "" {
		name = "uirun"
	}

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	root := doc.CreateElement("testsuites")
	root.CreateAttr("name", name)

	var total, failures, errs int
	for _, group := range groupBySource(rep.Results) {
		f, e := writeSuite(root, group, rep.Started)
		total += len(group.results)
		failures += f
		errs += e
	}

	root.CreateAttr("tests", fmt.Sprint(total))
	root.CreateAttr("failures", fmt.Sprint(failures))
	root.CreateAttr("errors", fmt.Sprint(errs))
	root.CreateAttr("time", seconds(rep.Summary().Duration))

	doc.Indent(2)
	_, err := doc.WriteTo(w)
	return err
}

type sourceGroup struct {
	source  string
	results []*harness.RunResult
}

func groupBySource(results []*harness.RunResult) []*sourceGroup {
	var groups []*sourceGroup
	index := make(map[string]*sourceGroup)
	for _, res := range results {
		g, ok := index[res.Source]
		if !ok {
			g = &sourceGroup{source: res.Source}
			index[res.Source] = g
			groups = append(groups, g)
		}
		g.results = append(g.results, res)
	}
	return groups
}

func writeSuite(root *etree.Element, g *sourceGroup, started time.Time) (failures, errs int) {
	suite := root.CreateElement("testsuite")
	suiteName := g.source
	if suiteName == "" {
		suiteName = "scenarios"
	}
	suite.CreateAttr("name", suiteName)

	var elapsed time.Duration
	for _, res := range g.results {
		elapsed += res.Duration()

		tc := suite.CreateElement("testcase")
		tc.CreateAttr("name", res.Scenario)
		tc.CreateAttr("classname", suiteName)
		tc.CreateAttr("time", seconds(res.Duration()))

		if res.Passed() {
			continue
		}

		var el *etree.Element
		if _, ok := res.FailedOutcome(); ok {
			el = tc.CreateElement("failure")
			failures++
		} else {
			el = tc.CreateElement("error")
			errs++
		}
		el.CreateAttr("type", string(res.Status))
		el.CreateAttr("message", res.Error)
		el.SetText(failureBody(res))

		if d := res.Diagnostic; d != nil && d.HTML != "" {
			tc.CreateElement("system-out").SetCData(d.HTML)
		}
	}

	suite.CreateAttr("tests", fmt.Sprint(len(g.results)))
	suite.CreateAttr("failures", fmt.Sprint(failures))
	suite.CreateAttr("errors", fmt.Sprint(errs))
	suite.CreateAttr("skipped", "0")
	suite.CreateAttr("time", seconds(elapsed))
	if !started.IsZero() {
		suite.CreateAttr("timestamp", started.UTC().Format("2006-01-02T15:04:05"))
	}
	return failures, errs
}

// failureBody lists the executed steps and the captured page.
func failureBody(res *harness.RunResult) string {
	var b strings.Builder
	for _, out := range res.Steps {
		fmt.Fprintf(&b, "%d. %s %s\n", out.Index, out.Status, out.Label)
		if out.Error != "" {
			fmt.Fprintf(&b, "   %s\n", out.Error)
		}
		if out.Observed != nil {
			fmt.Fprintf(&b, "   observed: %s\n", out.Observed)
		}
	}
	if d := res.Diagnostic; d != nil {
		fmt.Fprintf(&b, "page: %s\n", d.URL)
		if d.Title != "" {
			fmt.Fprintf(&b, "title: %s\n", d.Title)
		}
	}
	return b.String()
}

func seconds(d time.Duration) string {
	return fmt.Sprintf("%.3f", d.Seconds())
}
