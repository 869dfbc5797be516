// Package application provides application initialization and dependency
// wiring. It builds the database API client, realtime client, analytics
// tracker, and session store from resolved configuration, keeping the main
// package focused on CLI parsing and orchestration.
package application
