package elfobj

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const archiveMagic = "!<arch>\n"

// ErrNotArchive is returned when the input does not start with the ar magic.
var ErrNotArchive = errors.New("not an ar archive")

// Member is one file stored in an ar archive.
type Member struct {
	Name string
	Data []byte
}

// IsArchive reports whether b starts with the ar magic.
func IsArchive(b []byte) bool {
	return bytes.HasPrefix(b, []byte(archiveMagic))
}

// ReadArchive returns the members of an ar archive in archive order. GNU
// long names and BSD #1/ names are resolved; symbol tables are skipped.
// Members with the same name are all kept.
func ReadArchive(r io.Reader) ([]Member, error) {
	var magic [len(archiveMagic)]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, fmt.Errorf("failed to read archive magic: %w", err)
	}
	if string(magic[:]) != archiveMagic {
		return nil, ErrNotArchive
	}

	var (
		longNames []byte
		members   []Member
	)

	for {
		var header [60]byte
		if _, err := io.ReadFull(r, header[:]); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("failed to read member header: %w", err)
		}

		name := strings.TrimRight(string(header[:16]), " ")
		size, err := strconv.ParseUint(strings.TrimRight(string(header[48:58]), "\x00 "), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse size of member %q: %w", name, err)
		}

		// contents are padded to an even length. The buffer grows with the
		// bytes actually read, not with the size the header claims.
		var buf bytes.Buffer
		n, err := io.CopyN(&buf, r, int64(size+size%2))
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("failed to read member %q: %w", name, err)
		}
		// the pad byte of the last member is sometimes missing
		if uint64(n) < size {
			return nil, fmt.Errorf("failed to read member %q: %d of %d bytes: %w", name, n, size, io.ErrUnexpectedEOF)
		}
		contents := buf.Bytes()[:size]

		switch {
		case name == "//":
			if longNames != nil {
				return nil, errors.New("two long name tables found")
			}
			longNames = contents
			continue
		case name == "/" || name == "/SYM64/" || name == "__.SYMDEF" || name == "__.SYMDEF SORTED":
			continue
		case len(name) > 1 && name[0] == '/':
			if name, err = longName(longNames, name[1:]); err != nil {
				return nil, err
			}
		case strings.HasPrefix(name, "#1/"):
			n, err := strconv.ParseUint(name[3:], 10, 64)
			if err != nil || n > uint64(len(contents)) {
				return nil, fmt.Errorf("bad BSD name %q", name)
			}
			name = string(contents[:n])
			if i := strings.IndexByte(name, 0); i >= 0 {
				name = name[:i]
			}
			contents = contents[n:]
		default:
			name = strings.TrimRight(name, "/")
		}

		members = append(members, Member{Name: name, Data: contents})
	}

	return members, nil
}

// longName looks up a "/offset" reference in the GNU long name table.
func longName(table []byte, ref string) (string, error) {
	if table == nil {
		return "", errors.New("long name reference before name table")
	}
	off, err := strconv.ParseUint(ref, 10, 64)
	if err != nil {
		return "", fmt.Errorf("failed to parse long name offset: %w", err)
	}
	if off > uint64(len(table)) {
		return "", fmt.Errorf("long name offset %d out of bounds", off)
	}
	name := table[off:]
	i := bytes.IndexByte(name, '/')
	if i < 0 {
		return "", errors.New("unterminated long name")
	}
	return string(name[:i]), nil
}
