// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package nvd

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleFeed20 = `<?xml version='1.0' encoding='UTF-8'?>
<nvd xmlns:vuln="http://scap.nist.gov/schema/vulnerability/0.4" xmlns:cvss="http://scap.nist.gov/schema/cvss-v2/0.2" xmlns="http://scap.nist.gov/schema/feed/vulnerability/2.0" nvd_xml_version="2.0" pub_date="2014-04-08T10:00:00">
  <entry id="CVE-2014-0160">
    <vuln:vulnerable-software-list>
      <vuln:product>cpe:/a:openssl:openssl:1.0.1c</vuln:product>
      <vuln:product>cpe:/a:openssl:openssl:1.0.1</vuln:product>
      <vuln:product>cpe:/a:openssl:openssl:1.0.1c</vuln:product>
    </vuln:vulnerable-software-list>
    <vuln:cve-id>CVE-2014-0160</vuln:cve-id>
    <vuln:published-datetime>2014-04-07T18:55:03.893-04:00</vuln:published-datetime>
    <vuln:last-modified-datetime>2014-04-08T09:22:11.000-04:00</vuln:last-modified-datetime>
    <vuln:cvss>
      <cvss:base_metrics>
        <cvss:score>5.0</cvss:score>
        <cvss:access-vector>NETWORK</cvss:access-vector>
        <cvss:access-complexity>LOW</cvss:access-complexity>
        <cvss:authentication>NONE</cvss:authentication>
        <cvss:confidentiality-impact>PARTIAL</cvss:confidentiality-impact>
        <cvss:integrity-impact>NONE</cvss:integrity-impact>
        <cvss:availability-impact>NONE</cvss:availability-impact>
      </cvss:base_metrics>
    </vuln:cvss>
    <vuln:cwe id="CWE-119"/>
    <vuln:references xml:lang="en" reference_type="UNKNOWN">
      <vuln:source>CERT</vuln:source>
      <vuln:reference href="http://www.us-cert.gov/ncas/alerts/TA14-098A" xml:lang="en">TA14-098A</vuln:reference>
    </vuln:references>
    <vuln:summary>The TLS and DTLS implementations in OpenSSL 1.0.1 before 1.0.1g do not properly handle Heartbeat Extension packets.</vuln:summary>
  </entry>
  <entry id="CVE-2014-9999">
    <vuln:cve-id>CVE-2014-9999</vuln:cve-id>
    <vuln:summary>** REJECT **  DO NOT USE THIS CANDIDATE NUMBER.</vuln:summary>
  </entry>
  <entry id="CVE-2012-0391">
    <vuln:vulnerable-software-list>
      <vuln:product>cpe:/a:apache:struts:2.1.2</vuln:product>
      <vuln:product>cpe:/a:apache:struts:2.2.3</vuln:product>
    </vuln:vulnerable-software-list>
    <vuln:cve-id>CVE-2012-0391</vuln:cve-id>
    <vuln:cvss>
      <cvss:base_metrics>
        <cvss:score>9.3</cvss:score>
      </cvss:base_metrics>
    </vuln:cvss>
    <vuln:summary>The ExceptionDelegator component in Apache Struts before 2.2.3.1 converts parameter values.</vuln:summary>
  </entry>
</nvd>`

const sampleFeed12 = `<?xml version="1.0" encoding="UTF-8"?>
<nvd xmlns="http://nvd.nist.gov/feeds/cve/1.2" nvd_xml_version="1.2">
  <entry type="CVE" name="CVE-2012-0391" seq="2012-0391">
    <vuln_soft>
      <prod name="struts" vendor="apache">
        <vers num="2.1.2"/>
        <vers num="2.2.3" prev="1"/>
      </prod>
    </vuln_soft>
  </entry>
</nvd>`

const sampleDictionary = `<?xml version='1.0' encoding='UTF-8'?>
<cpe-list xmlns="http://cpe.mitre.org/dictionary/2.0" xmlns:cpe-23="http://scap.nist.gov/schema/cpe-extension/2.3">
  <generator><product_name>National Vulnerability Database (NVD)</product_name></generator>
  <cpe-item name="cpe:/a:openssl:openssl:1.0.1c">
    <title xml:lang="en-US">OpenSSL Project OpenSSL 1.0.1c</title>
    <cpe-23:cpe23-item name="cpe:2.3:a:openssl:openssl:1.0.1c:*:*:*:*:*:*:*"/>
  </cpe-item>
  <cpe-item name="cpe:/a:springsource:spring_framework:3.0.5">
    <title xml:lang="en-US">SpringSource Spring Framework 3.0.5</title>
  </cpe-item>
  <cpe-item name="cpe:/a:example:old:1.0" deprecated="true">
    <title xml:lang="en-US">Old</title>
  </cpe-item>
</cpe-list>`

func TestParse_CVE20(t *testing.T) {
	feed, err := Parse(strings.NewReader(sampleFeed20), nil)
	require.NoError(t, err)
	require.Len(t, feed.Vulnerabilities, 2, "rejected entries are skipped")
	assert.Empty(t, feed.Products)

	heartbleed := feed.Vulnerabilities[0]
	assert.Equal(t, "CVE-2014-0160", heartbleed.Name)
	assert.Equal(t, "CWE-119", heartbleed.CWE)
	assert.Equal(t, "MEDIUM", heartbleed.Severity)
	assert.InDelta(t, 5.0, heartbleed.CVSS.Score, 0.001)
	assert.Equal(t, "NETWORK", heartbleed.CVSS.AccessVector)
	assert.Equal(t, "2014-04-07T18:55:03.893-04:00", heartbleed.Published)
	require.Len(t, heartbleed.References, 1)
	assert.Equal(t, "CERT", heartbleed.References[0].Source)
	assert.Equal(t, "TA14-098A", heartbleed.References[0].Name)

	require.Len(t, heartbleed.VulnerableSoftware, 2, "duplicate products are collapsed")
	sw := heartbleed.VulnerableSoftware[0]
	assert.Equal(t, "cpe:/a:openssl:openssl:1.0.1c", sw.Name)
	assert.Equal(t, "openssl", sw.Vendor)
	assert.Equal(t, "1.0.1c", sw.Version)
	assert.False(t, sw.PreviousVersions)
}

func TestParse_WithLegacyPreviousVersions(t *testing.T) {
	feed, err := Parse(strings.NewReader(sampleFeed20), strings.NewReader(sampleFeed12))
	require.NoError(t, err)

	struts := feed.Vulnerabilities[1]
	require.Equal(t, "CVE-2012-0391", struts.Name)
	assert.Equal(t, "HIGH", struts.Severity)
	require.Len(t, struts.VulnerableSoftware, 2)
	assert.False(t, struts.VulnerableSoftware[0].PreviousVersions)
	assert.True(t, struts.VulnerableSoftware[1].PreviousVersions)
}

func TestParsePreviousVersions(t *testing.T) {
	prev, err := ParsePreviousVersions(strings.NewReader(sampleFeed12))
	require.NoError(t, err)
	assert.Equal(t, map[string]map[string]bool{
		"CVE-2012-0391": {"cpe:/a:apache:struts:2.2.3": true},
	}, prev)
}

func TestParse_Dictionary(t *testing.T) {
	feed, err := Parse(strings.NewReader(sampleDictionary), nil)
	require.NoError(t, err)
	assert.Empty(t, feed.Vulnerabilities)
	require.Len(t, feed.Products, 2, "deprecated items are skipped")

	assert.Equal(t, CPE{
		Part:    "a",
		Vendor:  "openssl",
		Product: "openssl",
		Version: "1.0.1c",
		Title:   "OpenSSL Project OpenSSL 1.0.1c",
	}, feed.Products[0])
	assert.Equal(t, "spring_framework", feed.Products[1].Product)
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse(strings.NewReader(""), nil)
	assert.Error(t, err)

	_, err = Parse(strings.NewReader(`<html><body/></html>`), nil)
	assert.ErrorContains(t, err, "unrecognized feed document")

	_, err = Parse(strings.NewReader(`<nvd><entry id="x"><cve-id>CVE-1</cve-id>`), nil)
	assert.Error(t, err, "truncated documents fail")

	_, err = Parse(strings.NewReader(sampleFeed20), strings.NewReader(`<nvd><entry name="a">`))
	assert.Error(t, err)
}

func TestParseCPE(t *testing.T) {
	c, err := ParseCPE("cpe:/a:openssl:openssl:1.0.1c")
	require.NoError(t, err)
	assert.Equal(t, "cpe:/a:openssl:openssl:1.0.1c", c.URI())
	assert.Equal(t, "1.0.1c", c.FullVersion())

	c, err = ParseCPE("cpe:2.3:a:apache:struts:2.3.16:*:*:*:*:*:*:*")
	require.NoError(t, err)
	assert.Equal(t, "cpe:/a:apache:struts:2.3.16", c.URI())

	c, err = ParseCPE("cpe:/a:apache:tomcat:7.0.0:beta")
	require.NoError(t, err)
	assert.Equal(t, "beta", c.Update)
	assert.Equal(t, "7.0.0.beta", c.FullVersion())
	assert.Equal(t, "cpe:/a:apache:tomcat:7.0.0:beta", c.URI())

	c, err = ParseCPE("cpe:/a:apache:struts")
	require.NoError(t, err)
	assert.Empty(t, c.Version)
	assert.Equal(t, "cpe:/a:apache:struts", c.URI())

	_, err = ParseCPE("not a cpe")
	assert.Error(t, err)
}
