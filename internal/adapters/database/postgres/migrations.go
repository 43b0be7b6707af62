package postgres

// Migrations is a list of all gorm migrations for the database.
var Migrations = []interface{}{
	&RecordTable{},
	&RecordRow{},
}
