package typenorm

import "strings"

// Dialect holds the per-language spellings the normalizer needs.
type Dialect struct {
	Name          string
	Open, Close   byte
	NoneToken     string
	NoneSpellings []string
	UnknownToken  string
	// Schema maps exact base names onto the target vocabulary.
	Schema map[string]string
	// Rewrite turns built-in composite syntax into Base[params] form before
	// schema lookup. It is never applied under PolicyNative.
	Rewrite func(string) (string, bool)
}

var Python = Dialect{
	Name:          "python",
	Open:          '[',
	Close:         ']',
	NoneToken:     "None",
	NoneSpellings: []string{"None", "NoneType"},
	UnknownToken:  "Any",
	Schema: map[string]string{
		"int":             SchemaInteger,
		"float":           SchemaFloat,
		"complex":         SchemaFloat,
		"str":             SchemaString,
		"bool":            SchemaBoolean,
		"bytes":           SchemaBytes,
		"bytearray":       SchemaBytes,
		"list":            SchemaList,
		"List":            SchemaList,
		"Sequence":        SchemaList,
		"MutableSequence": SchemaList,
		"dict":            SchemaMap,
		"Dict":            SchemaMap,
		"Mapping":         SchemaMap,
		"MutableMapping":  SchemaMap,
		"set":             SchemaSet,
		"Set":             SchemaSet,
		"frozenset":       SchemaSet,
		"FrozenSet":       SchemaSet,
		"tuple":           SchemaTuple,
		"Tuple":           SchemaTuple,
		"None":            SchemaNone,
		"Any":             SchemaAny,
		"object":          SchemaAny,
	},
}

var Go = Dialect{
	Name:         "go",
	Open:         '[',
	Close:        ']',
	UnknownToken: "any",
	Schema: map[string]string{
		"int":         SchemaInteger,
		"int8":        SchemaInteger,
		"int16":       SchemaInteger,
		"int32":       SchemaInteger,
		"int64":       SchemaInteger,
		"uint":        SchemaInteger,
		"uint8":       SchemaInteger,
		"uint16":      SchemaInteger,
		"uint32":      SchemaInteger,
		"uint64":      SchemaInteger,
		"uintptr":     SchemaInteger,
		"byte":        SchemaInteger,
		"rune":        SchemaInteger,
		"float32":     SchemaFloat,
		"float64":     SchemaFloat,
		"string":      SchemaString,
		"bool":        SchemaBoolean,
		"any":         SchemaAny,
		"interface{}": SchemaAny,
	},
	Rewrite: rewriteGo,
}

var TypeScript = Dialect{
	Name:          "typescript",
	Open:          '<',
	Close:         '>',
	NoneToken:     "void",
	NoneSpellings: []string{"void", "null", "undefined"},
	UnknownToken:  "any",
	Schema: map[string]string{
		"number":        SchemaFloat,
		"bigint":        SchemaInteger,
		"string":        SchemaString,
		"boolean":       SchemaBoolean,
		"Array":         SchemaList,
		"ReadonlyArray": SchemaList,
		"Map":           SchemaMap,
		"Record":        SchemaMap,
		"Set":           SchemaSet,
		"Uint8Array":    SchemaBytes,
		"Buffer":        SchemaBytes,
		"void":          SchemaNone,
		"any":           SchemaAny,
		"unknown":       SchemaAny,
	},
	Rewrite: rewriteArraySuffix,
}

// JavaScript shares the TypeScript spellings; only JSDoc-free inference
// reaches it, so most values are the unknown token.
var JavaScript = func() Dialect {
	d := TypeScript
	d.Name = "javascript"
	return d
}()

var Java = Dialect{
	Name:          "java",
	Open:          '<',
	Close:         '>',
	NoneToken:     "void",
	NoneSpellings: []string{"void", "Void"},
	UnknownToken:  "Object",
	Schema: map[string]string{
		"int":           SchemaInteger,
		"long":          SchemaInteger,
		"short":         SchemaInteger,
		"byte":          SchemaInteger,
		"Integer":       SchemaInteger,
		"Long":          SchemaInteger,
		"Short":         SchemaInteger,
		"Byte":          SchemaInteger,
		"BigInteger":    SchemaInteger,
		"float":         SchemaFloat,
		"double":        SchemaFloat,
		"Float":         SchemaFloat,
		"Double":        SchemaFloat,
		"BigDecimal":    SchemaFloat,
		"String":        SchemaString,
		"char":          SchemaString,
		"Character":     SchemaString,
		"CharSequence":  SchemaString,
		"boolean":       SchemaBoolean,
		"Boolean":       SchemaBoolean,
		"List":          SchemaList,
		"ArrayList":     SchemaList,
		"LinkedList":    SchemaList,
		"Collection":    SchemaList,
		"Map":           SchemaMap,
		"HashMap":       SchemaMap,
		"TreeMap":       SchemaMap,
		"LinkedHashMap": SchemaMap,
		"Set":           SchemaSet,
		"HashSet":       SchemaSet,
		"TreeSet":       SchemaSet,
		"void":          SchemaNone,
		"Object":        SchemaAny,
	},
	Rewrite: rewriteArraySuffix,
}

var Rust = Dialect{
	Name:          "rust",
	Open:          '<',
	Close:         '>',
	NoneToken:     "()",
	NoneSpellings: []string{"()"},
	UnknownToken:  "_",
	Schema: map[string]string{
		"i8":       SchemaInteger,
		"i16":      SchemaInteger,
		"i32":      SchemaInteger,
		"i64":      SchemaInteger,
		"i128":     SchemaInteger,
		"isize":    SchemaInteger,
		"u8":       SchemaInteger,
		"u16":      SchemaInteger,
		"u32":      SchemaInteger,
		"u64":      SchemaInteger,
		"u128":     SchemaInteger,
		"usize":    SchemaInteger,
		"f32":      SchemaFloat,
		"f64":      SchemaFloat,
		"String":   SchemaString,
		"str":      SchemaString,
		"char":     SchemaString,
		"bool":     SchemaBoolean,
		"Vec":      SchemaList,
		"VecDeque": SchemaList,
		"HashMap":  SchemaMap,
		"BTreeMap": SchemaMap,
		"HashSet":  SchemaSet,
		"BTreeSet": SchemaSet,
		"()":       SchemaNone,
		"_":        SchemaAny,
	},
	Rewrite: rewriteRust,
}

// DialectFor returns the dialect registered for a language id. Unknown
// languages fall back to Python spellings.
func DialectFor(language string) Dialect {
	switch language {
	case "go":
		return Go
	case "javascript":
		return JavaScript
	case "typescript", "tsx":
		return TypeScript
	case "java":
		return Java
	case "rust":
		return Rust
	default:
		return Python
	}
}

// rewriteGo turns slice, array, map, pointer and variadic syntax into
// bracketed schema form.
func rewriteGo(s string) (string, bool) {
	switch {
	case s == "[]byte":
		return SchemaBytes, true
	case strings.HasPrefix(s, "*"):
		return strings.TrimSpace(s[1:]), true
	case strings.HasPrefix(s, "..."):
		return "list[" + strings.TrimSpace(s[3:]) + "]", true
	case strings.HasPrefix(s, "["):
		end := matchingClose(s, 0)
		if end < 0 || end == len(s)-1 {
			return "", false
		}
		return "list[" + strings.TrimSpace(s[end+1:]) + "]", true
	case strings.HasPrefix(s, "map["):
		end := matchingClose(s, 3)
		if end < 0 || end == len(s)-1 {
			return "", false
		}
		key := strings.TrimSpace(s[4:end])
		value := strings.TrimSpace(s[end+1:])
		return "map[" + key + ", " + value + "]", true
	}
	return "", false
}

// rewriteArraySuffix turns T[] into list<T>.
func rewriteArraySuffix(s string) (string, bool) {
	if strings.HasSuffix(s, "[]") && len(s) > 2 {
		return "list<" + strings.TrimSpace(s[:len(s)-2]) + ">", true
	}
	return "", false
}

// rewriteRust strips references and lifetimes and turns slices and arrays
// into list<T>.
func rewriteRust(s string) (string, bool) {
	out := s
	changed := false
	for strings.HasPrefix(out, "&") {
		out = strings.TrimSpace(out[1:])
		if strings.HasPrefix(out, "'") {
			if sp := strings.IndexByte(out, ' '); sp > 0 {
				out = strings.TrimSpace(out[sp+1:])
			}
		}
		out = strings.TrimSpace(strings.TrimPrefix(out, "mut "))
		changed = true
	}
	if strings.HasPrefix(out, "[") && strings.HasSuffix(out, "]") {
		elem := strings.TrimSpace(out[1 : len(out)-1])
		if semi := strings.LastIndexByte(elem, ';'); semi >= 0 {
			elem = strings.TrimSpace(elem[:semi])
		}
		return "list<" + elem + ">", true
	}
	return out, changed
}
