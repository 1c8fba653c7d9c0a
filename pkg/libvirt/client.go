/*
Copyright 2024 The hypervisor-builder Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package libvirt manages guests on a libvirt host through the official
// bindings. Remote hosts are reached over qemu+ssh URIs, so the same
// client code drives local and SSH-reachable hypervisors.
package libvirt

import (
	"errors"
	"fmt"

	"github.com/go-logr/logr"
	"libvirt.org/go/libvirt"
	"libvirt.org/go/libvirtxml"

	"github.com/VirtwhoQE/hypervisor-builder/pkg/virt"
)

// Client wraps one libvirt connection.
type Client struct {
	conn *libvirt.Connect
	log  logr.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger injects the logger.
func WithLogger(log logr.Logger) Option {
	return func(c *Client) { c.log = log }
}

// RemoteURI builds the connection URI for a libvirt host reachable over
// SSH.
func RemoteURI(user, host string) string {
	return fmt.Sprintf("qemu+ssh://%s@%s/system", user, host)
}

// Connect opens a libvirt connection. Use "qemu:///system" for the
// local hypervisor or RemoteURI for an SSH-reachable one.
func Connect(uri string, opts ...Option) (*Client, error) {
	conn, err := libvirt.NewConnect(uri)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", uri, err)
	}

	c := &Client{
		conn: conn,
		log:  logr.Discard(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Close tears down the connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	_, err := c.conn.Close()
	c.conn = nil
	return err
}

// HostUUID reports the host's UUID from its capabilities document.
func (c *Client) HostUUID() (string, error) {
	capsXML, err := c.conn.GetCapabilities()
	if err != nil {
		return "", fmt.Errorf("getting capabilities: %w", err)
	}

	var caps libvirtxml.Caps
	if err := caps.Unmarshal(capsXML); err != nil {
		return "", fmt.Errorf("parsing capabilities: %w", err)
	}

	return caps.Host.UUID, nil
}

// HostVersion reports the hypervisor version as "major.minor.release".
func (c *Client) HostVersion() (string, error) {
	v, err := c.conn.GetVersion()
	if err != nil {
		return "", fmt.Errorf("getting hypervisor version: %w", err)
	}
	return formatVersion(v), nil
}

// GuestExists reports whether a domain of the given name is defined.
func (c *Client) GuestExists(guestName string) (bool, error) {
	dom, err := c.conn.LookupDomainByName(guestName)
	if err != nil {
		if isNoDomain(err) {
			return false, nil
		}
		return false, fmt.Errorf("looking up domain %s: %w", guestName, err)
	}
	defer freeDomain(c.log, dom)

	return true, nil
}

// GuestSearch assembles the flattened guest record for a domain. A nil
// result means no domain of that name exists.
func (c *Client) GuestSearch(guestName string) (*virt.Guest, error) {
	dom, err := c.conn.LookupDomainByName(guestName)
	if err != nil {
		if isNoDomain(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("looking up domain %s: %w", guestName, err)
	}
	defer freeDomain(c.log, dom)

	guestUUID, err := dom.GetUUIDString()
	if err != nil {
		return nil, fmt.Errorf("getting domain uuid: %w", err)
	}

	state, _, err := dom.GetState()
	if err != nil {
		return nil, fmt.Errorf("getting domain state: %w", err)
	}

	guest := &virt.Guest{
		GuestName:  guestName,
		GuestUUID:  guestUUID,
		GuestState: stateName(state),
	}

	// Lease-reported addresses are only available for running guests.
	if ifaces, err := dom.ListAllInterfaceAddresses(
		libvirt.DOMAIN_INTERFACE_ADDRESSES_SRC_LEASE,
	); err == nil {
		for _, iface := range ifaces {
			for _, addr := range iface.Addrs {
				guest.GuestIP = addr.Addr
			}
		}
	}

	if hostUUID, err := c.HostUUID(); err == nil {
		guest.UUID = hostUUID
	}
	if hostname, err := c.conn.GetHostname(); err == nil {
		guest.Hostname = hostname
	}
	if version, err := c.HostVersion(); err == nil {
		guest.Version = version
	}
	if info, err := c.conn.GetNodeInfo(); err == nil {
		guest.CPU = int(info.Sockets)
	}

	return guest, nil
}

// GuestStart powers on a defined guest.
func (c *Client) GuestStart(guestName string) error {
	return c.withDomain(guestName, "starting", (*libvirt.Domain).Create)
}

// GuestStop forcefully powers off a guest.
func (c *Client) GuestStop(guestName string) error {
	return c.withDomain(guestName, "stopping", (*libvirt.Domain).Destroy)
}

// GuestSuspend pauses a running guest.
func (c *Client) GuestSuspend(guestName string) error {
	return c.withDomain(guestName, "suspending", (*libvirt.Domain).Suspend)
}

// GuestResume unpauses a suspended guest.
func (c *Client) GuestResume(guestName string) error {
	return c.withDomain(guestName, "resuming", (*libvirt.Domain).Resume)
}

// GuestAdd defines a new guest from the given configuration and starts
// it.
func (c *Client) GuestAdd(guestName string, config GuestConfig) error {
	xml, err := generateDomainXML(guestName, config)
	if err != nil {
		return err
	}

	dom, err := c.conn.DomainDefineXML(xml)
	if err != nil {
		return fmt.Errorf("defining domain %s: %w", guestName, err)
	}
	defer freeDomain(c.log, dom)

	c.log.Info("defined guest", "guest", guestName)

	if err := dom.Create(); err != nil {
		return fmt.Errorf("starting domain %s: %w", guestName, err)
	}

	return nil
}

// GuestDelete destroys a guest if it is running and removes its
// definition.
func (c *Client) GuestDelete(guestName string) error {
	dom, err := c.conn.LookupDomainByName(guestName)
	if err != nil {
		return fmt.Errorf("looking up domain %s: %w", guestName, err)
	}
	defer freeDomain(c.log, dom)

	if active, err := dom.IsActive(); err == nil && active {
		if err := dom.Destroy(); err != nil {
			return fmt.Errorf("destroying domain %s: %w", guestName, err)
		}
	}

	if err := dom.Undefine(); err != nil {
		return fmt.Errorf("undefining domain %s: %w", guestName, err)
	}

	c.log.Info("deleted guest", "guest", guestName)

	return nil
}

// withDomain looks up a domain and applies one lifecycle operation.
func (c *Client) withDomain(guestName, action string, op func(*libvirt.Domain) error) error {
	dom, err := c.conn.LookupDomainByName(guestName)
	if err != nil {
		return fmt.Errorf("looking up domain %s: %w", guestName, err)
	}
	defer freeDomain(c.log, dom)

	if err := op(dom); err != nil {
		return fmt.Errorf("%s domain %s: %w", action, guestName, err)
	}

	c.log.Info("guest state changed", "guest", guestName, "action", action)

	return nil
}

// stateName maps a libvirt domain state to the virsh-compatible label
// the test harness matches against.
func stateName(state libvirt.DomainState) string {
	switch state {
	case libvirt.DOMAIN_RUNNING:
		return "running"
	case libvirt.DOMAIN_BLOCKED:
		return "blocked"
	case libvirt.DOMAIN_PAUSED:
		return "paused"
	case libvirt.DOMAIN_SHUTDOWN:
		return "in shutdown"
	case libvirt.DOMAIN_SHUTOFF:
		return "shut off"
	case libvirt.DOMAIN_CRASHED:
		return "crashed"
	case libvirt.DOMAIN_PMSUSPENDED:
		return "pmsuspended"
	default:
		return "no state"
	}
}

func formatVersion(v uint32) string {
	return fmt.Sprintf("%d.%d.%d", v/1000000, (v/1000)%1000, v%1000)
}

func isNoDomain(err error) bool {
	var lverr libvirt.Error
	if errors.As(err, &lverr) {
		return lverr.Code == libvirt.ERR_NO_DOMAIN
	}
	return false
}

func freeDomain(log logr.Logger, dom *libvirt.Domain) {
	if err := dom.Free(); err != nil {
		log.V(1).Info("error freeing domain handle", "err", err.Error())
	}
}
