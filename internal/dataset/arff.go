package dataset

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// WriteARFF writes the table as a weka attribute-relation file. Release and
// File are identifiers, not predictors, so they are left out.
func WriteARFF(w io.Writer, relation string, t Table) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "@relation %s\n\n", quoteARFF(relation))
	for _, name := range FeatureNames {
		fmt.Fprintf(bw, "@attribute %s numeric\n", name)
	}
	fmt.Fprintf(bw, "@attribute Buggy {%s,%s}\n\n@data\n", LabelYes, LabelNo)

	for _, r := range t {
		features := r.Features()
		fields := make([]string, 0, len(features)+1)
		for _, v := range features {
			fields = append(fields, strconv.FormatFloat(v, 'f', -1, 64))
		}
		fields = append(fields, r.Label())
		bw.WriteString(strings.Join(fields, ","))
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

func quoteARFF(s string) string {
	if strings.ContainsAny(s, " ,{}%'\"\t") {
		return "'" + strings.ReplaceAll(s, "'", "\\'") + "'"
	}
	return s
}
