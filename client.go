package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vmware/govmomi"
	"github.com/vmware/govmomi/object"
	"github.com/vmware/govmomi/session"
	"github.com/vmware/govmomi/view"
	"github.com/vmware/govmomi/vim25"
	"github.com/vmware/govmomi/vim25/methods"
	"github.com/vmware/govmomi/vim25/mo"
	"github.com/vmware/govmomi/vim25/soap"
	"github.com/vmware/govmomi/vim25/types"
)

const maxIdleConnections = 32

// Properties retrieved per host. Everything the report renders comes from
// these paths plus the per-adapter network hints.
var hostPathSet = []string{
	"name",
	"runtime",
	"config.network",
	"config.firewall",
	"config.dateTimeInfo",
	"config.service",
	"summary",
}

type vcClient struct {
	client *govmomi.Client
	root   *view.ContainerView
	cfg    *Config
}

type inventory struct {
	hosts        []mo.HostSystem
	dvSwitches   []mo.DistributedVirtualSwitch
	dvPortgroups []mo.DistributedVirtualPortgroup
}

func newSoapClient(cfg *Config) (*soap.Client, error) {
	soapURL, err := soap.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	if soapURL == nil {
		return nil, fmt.Errorf("invalid URL %q", cfg.URL)
	}
	soapURL.User = url.UserPassword(cfg.Username, cfg.Password)
	soapClient := soap.NewClient(soapURL, cfg.Insecure)
	if t, ok := soapClient.Transport.(*http.Transport); ok {
		t.MaxIdleConnsPerHost = maxIdleConnections
	}
	soapClient.Timeout = time.Second * time.Duration(cfg.RequestTimeout)
	return soapClient, nil
}

func newClient(cfg *Config) (*vcClient, error) {
	ctx := context.Background()
	soapClient, err := newSoapClient(cfg)
	if err != nil {
		return nil, err
	}

	vimClient, err := vim25.NewClient(ctx, soapClient)
	if err != nil {
		return nil, err
	}

	vmomiClient := &govmomi.Client{
		Client:         vimClient,
		SessionManager: session.NewManager(vimClient),
	}

	userInfo := url.UserPassword(cfg.Username, cfg.Password)
	addKeepAlive(vmomiClient, userInfo)

	if err := vmomiClient.Login(ctx, userInfo); err != nil {
		return nil, err
	}

	viewManager := view.NewManager(vimClient)
	root, err := viewManager.CreateContainerView(ctx,
		vimClient.ServiceContent.RootFolder, []string{}, true)
	if err != nil {
		// Release the session instead of leaving it to expire.
		_ = vmomiClient.Logout(ctx)
		return nil, err
	}

	return &vcClient{
		client: vmomiClient,
		root:   root,
		cfg:    cfg,
	}, nil
}

func (c *vcClient) version() string {
	return c.client.ServiceContent.About.FullName
}

func (c *vcClient) logout() {
	ctx := context.Background()
	_ = c.root.Destroy(ctx)
	if err := c.client.Logout(ctx); err != nil {
		log.WithFields(logrus.Fields{"error": err.Error()}).Debug("Logout failed")
	}
}

func (c *vcClient) inventory() (*inventory, error) {
	ctx := context.Background()
	var inv inventory
	if err := c.root.Retrieve(ctx, []string{"HostSystem"}, hostPathSet, &inv.hosts); err != nil {
		return nil, fmt.Errorf("retrieving hosts: %w", err)
	}
	if err := c.root.Retrieve(ctx, []string{"DistributedVirtualSwitch"},
		[]string{"uuid", "config", "summary"}, &inv.dvSwitches); err != nil {
		return nil, fmt.Errorf("retrieving distributed switches: %w", err)
	}
	if err := c.root.Retrieve(ctx, []string{"DistributedVirtualPortgroup"},
		[]string{"key", "config"}, &inv.dvPortgroups); err != nil {
		return nil, fmt.Errorf("retrieving distributed port groups: %w", err)
	}
	return &inv, nil
}

// networkHints returns the switch-side CDP/LLDP data observed on the host's
// physical adapters.
func (c *vcClient) networkHints(host mo.HostSystem) ([]types.PhysicalNicHintInfo, error) {
	ctx := context.Background()
	hs := object.NewHostSystem(c.client.Client, host.Reference())
	ns, err := hs.ConfigManager().NetworkSystem(ctx)
	if err != nil {
		return nil, err
	}
	req := types.QueryNetworkHint{This: ns.Reference()}
	res, err := methods.QueryNetworkHint(ctx, c.client.Client, &req)
	if err != nil {
		return nil, err
	}
	return res.Returnval, nil
}
