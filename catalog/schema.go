package catalog

import (
	"errors"
	"fmt"
	"minidb/catalog/db_types"
	"minidb/disk/structures"
	"strconv"
	"strings"
)

var ErrBadSchema = errors.New("bad schema")

// ParseSchema reads a schema written as comma separated name:type pairs, e.g. "id:int,name:char(20),score:float".
// Known types are int, float, bool, char and char(n).
func ParseSchema(schema string) (*structures.TupleDesc, error) {
	types, names := make([]db_types.TypeID, 0), make([]string, 0)
	for _, col := range strings.Split(schema, ",") {
		name, typ, ok := strings.Cut(strings.TrimSpace(col), ":")
		if !ok || name == "" {
			return nil, fmt.Errorf("%w: column %q should be name:type", ErrBadSchema, col)
		}

		id, err := parseType(strings.ToLower(strings.TrimSpace(typ)))
		if err != nil {
			return nil, err
		}
		types, names = append(types, id), append(names, strings.TrimSpace(name))
	}

	return structures.NewTupleDesc(types, names), nil
}

func parseType(typ string) (db_types.TypeID, error) {
	switch typ {
	case "int":
		return db_types.IntType(), nil
	case "float":
		return db_types.Float64TypeID, nil
	case "bool":
		return db_types.BoolTypeID, nil
	case "char":
		return db_types.CharType(db_types.DefaultCharSize), nil
	}

	if size, ok := strings.CutPrefix(typ, "char("); ok && strings.HasSuffix(size, ")") {
		n, err := strconv.ParseUint(strings.TrimSuffix(size, ")"), 10, 32)
		if err != nil || n == 0 {
			return db_types.TypeID{}, fmt.Errorf("%w: bad char size in %q", ErrBadSchema, typ)
		}
		return db_types.CharType(uint32(n)), nil
	}

	return db_types.TypeID{}, fmt.Errorf("%w: unknown type %q", ErrBadSchema, typ)
}
