// catalog holds the in memory representation of the database schema: the
// table and index definitions read from the schema object stored on page 1.
// It is consulted by the compiler and planner to resolve names to root pages
// and column types, and by the vm to build column maps for the Column opcode.
package catalog

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/chirst/dbm/coltype"
	"github.com/google/uuid"
)

const SchemaTableName = "dbm_schema"

// Catalog holds information about the database schema.
type Catalog struct {
	schema *schema
	// version changes every time the schema is mutated. The planner stamps a
	// compiled plan with the version it was compiled against; the db layer
	// refuses to run a plan whose stamp no longer matches and recompiles it
	// against the new schema.
	version string
}

func NewCatalog() *Catalog {
	c := &Catalog{
		schema: &schema{},
	}
	c.setNewVersion()
	return c
}

// GetRootPageNumber returns the root page of a table or index by name.
func (c *Catalog) GetRootPageNumber(tableOrIndexName string) (int, error) {
	if tableOrIndexName == SchemaTableName {
		return 1, nil
	}
	for _, o := range c.schema.objects {
		if o.Name == tableOrIndexName {
			return o.RootPageNumber, nil
		}
	}
	return 0, fmt.Errorf("cannot get root of %s", tableOrIndexName)
}

// GetColumns returns the ordered column names of a table.
func (c *Catalog) GetColumns(tableName string) ([]string, error) {
	if tableName == SchemaTableName {
		return []string{"id", "type", "name", "table_name", "rootpage", "sql"}, nil
	}
	ts, err := c.tableSchema(tableName)
	if err != nil {
		return nil, err
	}
	ret := make([]string, len(ts.Columns))
	for i, col := range ts.Columns {
		ret[i] = col.Name
	}
	return ret, nil
}

// GetPrimaryKeyColumnIndex returns the zero based index of tableName's
// declared primary key column, or -1 if the table has none.
func (c *Catalog) GetPrimaryKeyColumnIndex(tableName string) (int, error) {
	if tableName == SchemaTableName {
		return 0, nil
	}
	ts, err := c.tableSchema(tableName)
	if err != nil {
		return -1, err
	}
	for i, col := range ts.Columns {
		if col.PrimaryKey {
			return i, nil
		}
	}
	return -1, nil
}

// TableExists reports whether tableName has a CREATE TABLE entry.
func (c *Catalog) TableExists(tableName string) bool {
	if tableName == SchemaTableName {
		return true
	}
	return slices.ContainsFunc(c.schema.objects, func(o Object) bool {
		return o.ObjectType == "table" && o.TableName == tableName
	})
}

// GetColumnType returns the declared column type for a column, used by the vm
// to build the column map it needs to interpret Column opcode payloads.
func (c *Catalog) GetColumnType(tableName string, columnName string) (coltype.CT, error) {
	if tableName == SchemaTableName {
		switch columnName {
		case "id", "rootpage":
			return coltype.Int, nil
		case "type", "name", "table_name", "sql":
			return coltype.Str, nil
		}
		return coltype.Unknown, fmt.Errorf("no type for table %s col %s", tableName, columnName)
	}
	ts, err := c.tableSchema(tableName)
	if err != nil {
		return coltype.Unknown, err
	}
	for _, col := range ts.Columns {
		if col.Name == columnName {
			return colTypeFromString(col.ColType)
		}
	}
	return coltype.Unknown, fmt.Errorf("no type for table %s col %s", tableName, columnName)
}

// ColumnTypes returns the ordered declared types of every column in a table,
// the column map the vm's Column opcode needs.
func (c *Catalog) ColumnTypes(tableName string) ([]coltype.CT, error) {
	cols, err := c.GetColumns(tableName)
	if err != nil {
		return nil, err
	}
	types := make([]coltype.CT, len(cols))
	for i, col := range cols {
		t, err := c.GetColumnType(tableName, col)
		if err != nil {
			return nil, err
		}
		types[i] = t
	}
	return types, nil
}

func colTypeFromString(s string) (coltype.CT, error) {
	switch s {
	case "INTEGER":
		return coltype.Int, nil
	case "TEXT":
		return coltype.Str, nil
	default:
		return coltype.Unknown, fmt.Errorf("no type for %s", s)
	}
}

// IndexesOn returns the schema object of every index declared over tableName.
func (c *Catalog) IndexesOn(tableName string) []Object {
	ret := []Object{}
	for _, o := range c.schema.objects {
		if o.ObjectType == "index" && o.TableName == tableName {
			ret = append(ret, o)
		}
	}
	return ret
}

// IndexOnColumn returns the first index declared over tableName.columnName,
// used by the planner to choose an index-scan plan for an equality
// predicate.
func (c *Catalog) IndexOnColumn(tableName, columnName string) (Object, bool) {
	for _, o := range c.IndexesOn(tableName) {
		idx := IndexSchemaFromString(o.JsonSchema)
		if idx.Column == columnName {
			return o, true
		}
	}
	return Object{}, false
}

func (c *Catalog) tableSchema(tableName string) (*TableSchema, error) {
	for _, o := range c.schema.objects {
		if o.ObjectType == "table" && o.Name == tableName && o.TableName == tableName {
			return TableSchemaFromString(o.JsonSchema), nil
		}
	}
	return nil, fmt.Errorf("cannot find table %s", tableName)
}

// GetVersion returns a unique version identifier that is updated when the
// catalog is updated.
func (c *Catalog) GetVersion() string {
	return c.version
}

// Objects returns every object currently in the schema.
func (c *Catalog) Objects() []Object {
	return c.schema.objects
}

func (c *Catalog) SetSchema(o []Object) {
	c.schema.objects = o
	c.setNewVersion()
}

// AddObject appends a single object to the schema without writing a schema
// row. The db layer does not use it (it reloads the catalog with ParseSchema
// after DDL); tests use it to register objects they create directly.
func (c *Catalog) AddObject(o Object) {
	c.schema.objects = append(c.schema.objects, o)
	c.setNewVersion()
}

func (c *Catalog) setNewVersion() {
	c.version = uuid.NewString()
}

// schema is a cached representation of the database schema.
type schema struct {
	objects []Object
}

// Object is one row of the schema table: a table or index definition.
type Object struct {
	ObjectType     string `json:"objectType"`
	Name           string `json:"name"`
	TableName      string `json:"tableName"`
	RootPageNumber int    `json:"rootPageNumber"`
	JsonSchema     string `json:"jsonSchema"`
}

type TableSchema struct {
	Columns []TableColumn `json:"columns"`
}

type TableColumn struct {
	Name       string `json:"name"`
	ColType    string `json:"type"`
	PrimaryKey bool   `json:"primaryKey"`
}

func (ts *TableSchema) ToJSON() ([]byte, error) {
	return json.Marshal(ts)
}

func TableSchemaFromString(s string) *TableSchema {
	v := &TableSchema{}
	json.Unmarshal([]byte(s), &v)
	return v
}

// IndexSchema is the jsonSchema payload for an index object: the single
// column it covers. Composite indexes are out of scope.
type IndexSchema struct {
	Column string `json:"column"`
}

func (is *IndexSchema) ToJSON() ([]byte, error) {
	return json.Marshal(is)
}

func IndexSchemaFromString(s string) *IndexSchema {
	v := &IndexSchema{}
	json.Unmarshal([]byte(s), &v)
	return v
}
