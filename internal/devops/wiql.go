package devops

import (
	"fmt"
	"strings"
	"time"
)

// wiqlTimeLayout requires the timePrecision=true query parameter on the WIQL call
const wiqlTimeLayout = "2006-01-02T15:04:05Z"

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// AllItemsQuery selects every work item of a project
func AllItemsQuery(project string) string {
	return fmt.Sprintf(
		"SELECT [%s] FROM WorkItems WHERE [%s] = %s ORDER BY [%s] ASC",
		FieldID, FieldTeamProject, quote(project), FieldID,
	)
}

// ChangedSinceQuery selects work items changed at or after since
func ChangedSinceQuery(project string, since time.Time) string {
	return fmt.Sprintf(
		"SELECT [%s] FROM WorkItems WHERE [%s] = %s AND [%s] >= %s ORDER BY [%s] ASC",
		FieldID, FieldTeamProject, quote(project),
		FieldChangedDate, quote(since.UTC().Format(wiqlTimeLayout)),
		FieldChangedDate,
	)
}

// InIterationQuery selects work items under an iteration path
func InIterationQuery(project, iterationPath string) string {
	return fmt.Sprintf(
		"SELECT [%s] FROM WorkItems WHERE [%s] = %s AND [%s] UNDER %s ORDER BY [%s] ASC",
		FieldID, FieldTeamProject, quote(project),
		FieldIterationPath, quote(iterationPath),
		FieldID,
	)
}
