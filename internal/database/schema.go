package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema lists the tables in dependency order.  Every statement is
// idempotent so Migrate can run on each start.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS films (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		title VARCHAR(255) NOT NULL,
		duration_minutes INT UNSIGNED NOT NULL,
		is_active TINYINT(1) NOT NULL DEFAULT 1,
		created_at DATETIME(3) NOT NULL
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS rooms (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		name VARCHAR(100) NOT NULL,
		seat_rows INT UNSIGNED NOT NULL,
		seats_per_row INT UNSIGNED NOT NULL,
		is_active TINYINT(1) NOT NULL DEFAULT 1,
		created_at DATETIME(3) NOT NULL,
		UNIQUE KEY uq_rooms_name (name)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS seats (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		room_id BIGINT UNSIGNED NOT NULL,
		row_label VARCHAR(8) NOT NULL,
		seat_number INT UNSIGNED NOT NULL,
		seat_class VARCHAR(16) NOT NULL DEFAULT 'STANDARD',
		is_active TINYINT(1) NOT NULL DEFAULT 1,
		UNIQUE KEY uq_seats_position (room_id, row_label, seat_number),
		CONSTRAINT fk_seats_room FOREIGN KEY (room_id) REFERENCES rooms(id)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS showtimes (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		film_id BIGINT UNSIGNED NOT NULL,
		room_id BIGINT UNSIGNED NOT NULL,
		starts_at DATETIME(3) NOT NULL,
		ends_at DATETIME(3) NOT NULL,
		price_cents INT UNSIGNED NOT NULL,
		is_active TINYINT(1) NOT NULL DEFAULT 1,
		created_at DATETIME(3) NOT NULL,
		updated_at DATETIME(3) NOT NULL,
		KEY idx_showtimes_room_window (room_id, starts_at, ends_at),
		CONSTRAINT fk_showtimes_film FOREIGN KEY (film_id) REFERENCES films(id),
		CONSTRAINT fk_showtimes_room FOREIGN KEY (room_id) REFERENCES rooms(id)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS reservations (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		number VARCHAR(32) NOT NULL,
		showtime_id BIGINT UNSIGNED NOT NULL,
		user_id VARCHAR(64) NULL,
		holder_ref VARCHAR(128) NOT NULL,
		contact_name VARCHAR(255) NOT NULL DEFAULT '',
		contact_email VARCHAR(255) NOT NULL DEFAULT '',
		contact_phone VARCHAR(64) NOT NULL DEFAULT '',
		seat_ids JSON NOT NULL,
		quantity INT UNSIGNED NOT NULL,
		unit_price_cents INT UNSIGNED NOT NULL,
		total_cents BIGINT UNSIGNED NOT NULL DEFAULT 0,
		currency VARCHAR(8) NOT NULL,
		status VARCHAR(16) NOT NULL,
		payment_ref VARCHAR(255) NULL,
		refund_status VARCHAR(16) NOT NULL DEFAULT 'NONE',
		cancel_reason VARCHAR(255) NULL,
		expires_at DATETIME(3) NULL,
		created_at DATETIME(3) NOT NULL,
		confirmed_at DATETIME(3) NULL,
		cancelled_at DATETIME(3) NULL,
		UNIQUE KEY uq_reservations_number (number),
		KEY idx_reservations_user (user_id),
		KEY idx_reservations_showtime (showtime_id),
		KEY idx_reservations_pending (status, expires_at),
		CONSTRAINT fk_reservations_showtime FOREIGN KEY (showtime_id) REFERENCES showtimes(id)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS seat_claims (
		showtime_id BIGINT UNSIGNED NOT NULL,
		seat_id BIGINT UNSIGNED NOT NULL,
		state VARCHAR(16) NOT NULL,
		holder VARCHAR(128) NOT NULL DEFAULT '',
		reservation_id BIGINT UNSIGNED NULL,
		expires_at DATETIME(3) NULL,
		created_at DATETIME(3) NOT NULL,
		PRIMARY KEY (showtime_id, seat_id),
		KEY idx_seat_claims_expiry (state, expires_at),
		KEY idx_seat_claims_reservation (reservation_id),
		CONSTRAINT fk_seat_claims_showtime FOREIGN KEY (showtime_id) REFERENCES showtimes(id),
		CONSTRAINT fk_seat_claims_seat FOREIGN KEY (seat_id) REFERENCES seats(id)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS cart_items (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		session_id VARCHAR(128) NOT NULL,
		user_id VARCHAR(64) NULL,
		showtime_id BIGINT UNSIGNED NOT NULL,
		seat_class VARCHAR(16) NOT NULL,
		quantity INT UNSIGNED NOT NULL,
		unit_price_cents INT UNSIGNED NOT NULL,
		seat_ids JSON NOT NULL,
		created_at DATETIME(3) NOT NULL,
		expires_at DATETIME(3) NOT NULL,
		KEY idx_cart_session (session_id),
		KEY idx_cart_user (user_id),
		KEY idx_cart_expiry (expires_at)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS invoices (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		number VARCHAR(64) NOT NULL,
		reservation_id BIGINT UNSIGNED NOT NULL,
		amount_cents BIGINT UNSIGNED NOT NULL,
		currency VARCHAR(8) NOT NULL,
		client_id VARCHAR(64) NOT NULL DEFAULT '',
		client_name VARCHAR(255) NOT NULL DEFAULT '',
		client_email VARCHAR(255) NOT NULL DEFAULT '',
		supplier_name VARCHAR(255) NOT NULL DEFAULT '',
		supplier_email VARCHAR(255) NOT NULL DEFAULT '',
		payment_ref VARCHAR(255) NOT NULL,
		issued_at DATETIME(3) NOT NULL,
		UNIQUE KEY uq_invoices_number (number),
		UNIQUE KEY uq_invoices_reservation (reservation_id),
		CONSTRAINT fk_invoices_reservation FOREIGN KEY (reservation_id) REFERENCES reservations(id)
	) ENGINE=InnoDB`,
}

// Migrate creates any missing table.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
