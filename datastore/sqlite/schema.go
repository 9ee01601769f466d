package sqlite

var tables = map[string]string{
	"lease_event": `CREATE TABLE IF NOT EXISTS lease_event(
id INTEGER PRIMARY KEY AUTOINCREMENT,
uuid TEXT NOT NULL UNIQUE,
mac_address TEXT NOT NULL,
ip_address TEXT NOT NULL,
dpid TEXT NOT NULL,
port INTEGER NOT NULL,
action TEXT NOT NULL,
created_at TIMESTAMP NOT NULL
)`,
}
