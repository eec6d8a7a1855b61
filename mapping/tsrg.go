package mapping

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// TsrgReader parses TSRG mapping files, both the original single-pair
// format and the TSRG2 multi-namespace format. Only the first two
// namespace columns are pumped; extra TSRG2 columns (ids, parameter
// and static markers) are skipped.
type TsrgReader struct {
	fileReader io.Reader
}

func NewTsrgReader(fileReader io.Reader) *TsrgReader {
	return &TsrgReader{fileReader: fileReader}
}

// Pump reads the whole file, feeding every class and member mapping to
// the processor. Member lines are processed in the context of the most
// recent class line, mirroring the file's indentation structure.
func (r *TsrgReader) Pump(processor Processor) error {
	scanner := bufio.NewScanner(r.fileReader)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var (
		tsrg2      bool
		firstLine  = true
		className  string
		interested bool
	)

	for scanner.Scan() {
		line := scanner.Text()
		if len(strings.TrimSpace(line)) == 0 || strings.HasPrefix(line, "#") {
			continue
		}

		if firstLine {
			firstLine = false
			if strings.HasPrefix(line, "tsrg2 ") {
				tsrg2 = true
				continue
			}
		}

		// Parameter and static markers sit at the second indent level.
		if strings.HasPrefix(line, "\t\t") {
			continue
		}

		if strings.HasPrefix(line, "\t") {
			if len(className) == 0 || !interested {
				continue
			}
			if err := r.processMemberLine(className, line[1:], tsrg2, processor); err != nil {
				return err
			}
			continue
		}

		name, interestedNow, err := r.processClassLine(line, processor)
		if err != nil {
			return err
		}
		className = name
		interested = interestedNow
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading tsrg mappings: %w", err)
	}
	return nil
}

func isFieldDescriptor(s string) bool {
	for len(s) > 0 && s[0] == '[' {
		s = s[1:]
	}
	if len(s) == 1 {
		return strings.ContainsRune("BCDFIJSZ", rune(s[0]))
	}
	return len(s) >= 3 && s[0] == 'L' && s[len(s)-1] == ';'
}

func (r *TsrgReader) processClassLine(line string, processor Processor) (string, bool, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return "", false, fmt.Errorf("malformed tsrg class line: %q", line)
	}
	return fields[0], processor.ProcessClassMapping(fields[0], fields[1]), nil
}

func (r *TsrgReader) processMemberLine(className, line string, tsrg2 bool, processor Processor) error {
	fields := strings.Fields(line)
	switch {
	// Method: "<name> <desc> <newName> ..."
	case len(fields) >= 3 && strings.HasPrefix(fields[1], "("):
		processor.ProcessMethodMapping(className, fields[0], fields[1], fields[2])
	// Field with descriptor (tsrg2): "<name> <desc> <newName> ..."
	case tsrg2 && len(fields) >= 3 && isFieldDescriptor(fields[1]):
		processor.ProcessFieldMapping(className, fields[0], fields[1], fields[2])
	// Field without descriptor: "<name> <newName>"
	case len(fields) >= 2:
		processor.ProcessFieldMapping(className, fields[0], "", fields[1])
	default:
		return fmt.Errorf("malformed tsrg member line: %q", line)
	}
	return nil
}
