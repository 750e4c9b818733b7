package checks

import (
	"fmt"
	"strings"
)

// tableColumn is a column of an ascii table.
type tableColumn struct {
	Name  string
	Right bool // right align numbers
	size  int
}

// asciiTable renders rows as markdown style table. Pipes in values are escaped.
func asciiTable(columns []tableColumn, rows [][]string) (string, error) {
	for i := range columns {
		columns[i].size = len(columns[i].Name)
	}

	for num, row := range rows {
		if len(row) != len(columns) {
			return "", fmt.Errorf("row %d has %d columns, expected %d", num, len(row), len(columns))
		}
		for i := range row {
			row[i] = strings.ReplaceAll(row[i], "|", "\\|")
			if len(row[i]) > columns[i].size {
				columns[i].size = len(row[i])
			}
		}
	}

	var out strings.Builder
	for _, col := range columns {
		fmt.Fprintf(&out, "| %-*s ", col.size, col.Name)
	}
	out.WriteString("|\n")

	for _, col := range columns {
		if col.Right {
			fmt.Fprintf(&out, "| %s:", strings.Repeat("-", col.size))
		} else {
			fmt.Fprintf(&out, "| %s ", strings.Repeat("-", col.size))
		}
	}
	out.WriteString("|\n")

	for _, row := range rows {
		for i, col := range columns {
			if col.Right {
				fmt.Fprintf(&out, "| %*s ", col.size, row[i])
			} else {
				fmt.Fprintf(&out, "| %-*s ", col.size, row[i])
			}
		}
		out.WriteString("|\n")
	}

	return strings.TrimSuffix(out.String(), "\n"), nil
}
