// Package apps hosts example producer applications. Each app owns one
// namespace and drives the kernel exclusively through the bus handle API;
// apps never reach into the kernel's collaborator infrastructure.
package apps
