// Package gpkg writes mosaics into a GeoPackage raster pyramid. It speaks
// plain SQL over mattn/go-sqlite3 and creates the gpkg_* metadata tables a
// consumer expects.
package gpkg

import (
	"database/sql"
	"fmt"
	"os"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/mapweave/mapweave/pkg/geo"
)

// gpkgApplicationID is the GeoPackage magic stored in the sqlite header.
const gpkgApplicationID = 0x47504B47 // "GPKG"

const webMercatorSrs = 3857

// TileSet describes one zoom level of tiles to ingest.
type TileSet struct {
	ZoomLevel  int
	TileWidth  int
	TileHeight int
	// MatrixWidth/MatrixHeight are the GoogleMapsCompatible dimensions at
	// ZoomLevel.
	MatrixWidth  int
	MatrixHeight int
	// Extent is the tile set's extent in EPSG:3857.
	Extent geo.Rectangle
}

// Writer ingests raster tiles into one GeoPackage file, appending when the
// file already exists.
type Writer struct {
	db *sql.DB
}

// Open creates or opens a GeoPackage at path.
func Open(path string) (*Writer, error) {
	fresh := false
	if _, err := os.Stat(path); os.IsNotExist(err) {
		fresh = true
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed opening geopackage %s", path)
	}
	w := &Writer{db: db}
	if fresh {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA application_id = %d", gpkgApplicationID)); err != nil {
			db.Close()
			return nil, errors.Wrap(err, "failed stamping geopackage application id")
		}
	}
	if err := w.ensureMetaTables(); err != nil {
		db.Close()
		return nil, err
	}
	return w, nil
}

// Close releases the underlying database.
func (w *Writer) Close() error { return w.db.Close() }

func (w *Writer) ensureMetaTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS gpkg_spatial_ref_sys (
			srs_name TEXT NOT NULL,
			srs_id INTEGER NOT NULL PRIMARY KEY,
			organization TEXT NOT NULL,
			organization_coordsys_id INTEGER NOT NULL,
			definition TEXT NOT NULL,
			description TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS gpkg_contents (
			table_name TEXT NOT NULL PRIMARY KEY,
			data_type TEXT NOT NULL,
			identifier TEXT UNIQUE,
			description TEXT DEFAULT '',
			last_change DATETIME NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
			min_x DOUBLE,
			min_y DOUBLE,
			max_x DOUBLE,
			max_y DOUBLE,
			srs_id INTEGER,
			CONSTRAINT fk_gc_r_srs_id FOREIGN KEY (srs_id) REFERENCES gpkg_spatial_ref_sys(srs_id)
		)`,
		`CREATE TABLE IF NOT EXISTS gpkg_tile_matrix_set (
			table_name TEXT NOT NULL PRIMARY KEY,
			srs_id INTEGER NOT NULL,
			min_x DOUBLE NOT NULL,
			min_y DOUBLE NOT NULL,
			max_x DOUBLE NOT NULL,
			max_y DOUBLE NOT NULL,
			CONSTRAINT fk_gtms_table_name FOREIGN KEY (table_name) REFERENCES gpkg_contents(table_name),
			CONSTRAINT fk_gtms_srs FOREIGN KEY (srs_id) REFERENCES gpkg_spatial_ref_sys(srs_id)
		)`,
		`CREATE TABLE IF NOT EXISTS gpkg_tile_matrix (
			table_name TEXT NOT NULL,
			zoom_level INTEGER NOT NULL,
			matrix_width INTEGER NOT NULL,
			matrix_height INTEGER NOT NULL,
			tile_width INTEGER NOT NULL,
			tile_height INTEGER NOT NULL,
			pixel_x_size DOUBLE NOT NULL,
			pixel_y_size DOUBLE NOT NULL,
			CONSTRAINT pk_ttm PRIMARY KEY (table_name, zoom_level),
			CONSTRAINT fk_tmm_table_name FOREIGN KEY (table_name) REFERENCES gpkg_contents(table_name)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := w.db.Exec(stmt); err != nil {
			return errors.Wrap(err, "failed creating geopackage metadata tables")
		}
	}

	srs := []struct {
		name   string
		id     int
		org    string
		code   int
		def    string
	}{
		{"Undefined cartesian SRS", -1, "NONE", -1, "undefined"},
		{"Undefined geographic SRS", 0, "NONE", 0, "undefined"},
		{"WGS 84 geodetic", 4326, "EPSG", 4326, `GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563]],PRIMEM["Greenwich",0],UNIT["degree",0.0174532925199433],AUTHORITY["EPSG","4326"]]`},
		{"WGS 84 / Pseudo-Mercator", 3857, "EPSG", 3857, `PROJCS["WGS 84 / Pseudo-Mercator",GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563]],PRIMEM["Greenwich",0],UNIT["degree",0.0174532925199433]],PROJECTION["Mercator_1SP"],UNIT["metre",1],AUTHORITY["EPSG","3857"]]`},
	}
	for _, s := range srs {
		if _, err := w.db.Exec(
			`INSERT OR IGNORE INTO gpkg_spatial_ref_sys
			 (srs_name, srs_id, organization, organization_coordsys_id, definition) VALUES (?,?,?,?,?)`,
			s.name, s.id, s.org, s.code, s.def); err != nil {
			return errors.Wrap(err, "failed seeding gpkg_spatial_ref_sys")
		}
	}
	return nil
}

// WriteTileSet registers the tiles_level_<z> table for one pyramid level
// and ingests the given tiles. A tile is (row, col) addressed within the
// GoogleMapsCompatible matrix; data is the encoded image bytes.
func (w *Writer) WriteTileSet(set TileSet, tiles map[[2]int][]byte) error {
	table := fmt.Sprintf("tiles_level_%d", set.ZoomLevel)

	if _, err := w.db.Exec(fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %q (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			zoom_level INTEGER NOT NULL,
			tile_column INTEGER NOT NULL,
			tile_row INTEGER NOT NULL,
			tile_data BLOB NOT NULL,
			UNIQUE (zoom_level, tile_column, tile_row)
		)`, table)); err != nil {
		return errors.Wrapf(err, "failed creating tile table %s", table)
	}

	ext := set.Extent
	if _, err := w.db.Exec(
		`INSERT OR REPLACE INTO gpkg_contents
		 (table_name, data_type, identifier, min_x, min_y, max_x, max_y, srs_id)
		 VALUES (?, 'tiles', ?, ?, ?, ?, ?, ?)`,
		table, table, ext.MinX, ext.MinY, ext.MaxX, ext.MaxY, webMercatorSrs); err != nil {
		return errors.Wrap(err, "failed registering tile table in gpkg_contents")
	}
	if _, err := w.db.Exec(
		`INSERT OR REPLACE INTO gpkg_tile_matrix_set (table_name, srs_id, min_x, min_y, max_x, max_y)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		table, webMercatorSrs, ext.MinX, ext.MinY, ext.MaxX, ext.MaxY); err != nil {
		return errors.Wrap(err, "failed registering tile matrix set")
	}
	if _, err := w.db.Exec(
		`INSERT OR REPLACE INTO gpkg_tile_matrix
		 (table_name, zoom_level, matrix_width, matrix_height, tile_width, tile_height, pixel_x_size, pixel_y_size)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		table, set.ZoomLevel, set.MatrixWidth, set.MatrixHeight, set.TileWidth, set.TileHeight,
		ext.Width()/float64(set.MatrixWidth*set.TileWidth),
		ext.Height()/float64(set.MatrixHeight*set.TileHeight)); err != nil {
		return errors.Wrap(err, "failed registering tile matrix")
	}

	tx, err := w.db.Begin()
	if err != nil {
		return errors.Wrap(err, "failed opening tile insert transaction")
	}
	stmt, err := tx.Prepare(fmt.Sprintf(
		`INSERT OR REPLACE INTO %q (zoom_level, tile_column, tile_row, tile_data) VALUES (?, ?, ?, ?)`, table))
	if err != nil {
		tx.Rollback()
		return errors.Wrap(err, "failed preparing tile insert")
	}
	defer stmt.Close()

	for addr, data := range tiles {
		if _, err := stmt.Exec(set.ZoomLevel, addr[1], addr[0], data); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "failed inserting tile row=%d col=%d", addr[0], addr[1])
		}
	}
	return errors.Wrap(tx.Commit(), "failed committing tiles")
}
